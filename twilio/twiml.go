package twilio

import (
	"encoding/xml"
	"sort"
)

// RecordingNotice is read to the caller before the assistant answers.
const RecordingNotice = "This call is being recorded for quality purposes."

type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     *twimlSay     `xml:"Say,omitempty"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
}

type twimlSay struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// StreamTwiML connects the call to the media stream at streamURL. A
// non-empty notice is spoken first. params arrive on the stream's start
// frame as customParameters.
func StreamTwiML(streamURL, notice string, params map[string]string) ([]byte, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	stream := twimlStream{URL: streamURL}
	for _, name := range names {
		if params[name] == "" {
			continue
		}
		stream.Parameters = append(stream.Parameters, twimlParameter{Name: name, Value: params[name]})
	}

	resp := twimlResponse{Connect: &twimlConnect{Stream: stream}}
	if notice != "" {
		resp.Say = &twimlSay{Voice: "woman", Text: notice}
	}

	body, err := xml.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
