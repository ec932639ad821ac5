// Command test plays a recorded caller into the browser websocket and
// speaks the receptionist's replies through sox.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"io"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/room4-2/receptionist/logging"
	"github.com/room4-2/receptionist/messages"
)

const (
	chunkSize   = 3200 // 100ms of 16 kHz PCM
	chunkPace   = 100 * time.Millisecond
	wavHeader   = 44
	replyWindow = 30 * time.Second
)

// inbound mirrors messages.ServerMessage with the payload left undecoded.
type inbound struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// speaker streams 24 kHz PCM to the default output device.
type speaker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	mu     sync.Mutex
	closed bool
}

func newSpeaker() (*speaker, error) {
	cmd := exec.Command("sox",
		"-t", "raw", "-r", "24000", "-b", "16", "-c", "1", "-e", "signed-integer",
		"-", "-d",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &speaker{cmd: cmd, stdin: stdin}, nil
}

func (s *speaker) play(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		_, _ = s.stdin.Write(pcm)
	}
}

func (s *speaker) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.stdin.Close()
	_ = s.cmd.Wait()
}

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "Browser websocket URL")
	tenant := flag.String("tenant", "", "Tenant to call (server default when empty)")
	audioFile := flag.String("file", "testdata/caller.pcm", "Caller audio, 16 kHz PCM or WAV")
	flag.Parse()

	logger := logging.New("debug", "console")
	defer func() { _ = logger.Sync() }()

	target, err := dialURL(*serverURL, *tenant)
	if err != nil {
		logger.Fatal("Invalid server URL", zap.Error(err))
	}

	logger.Info("🔌 Connecting", zap.String("url", target))
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		logger.Fatal("Failed to connect", zap.Error(err))
	}
	defer conn.Close()

	out, err := newSpeaker()
	if err != nil {
		logger.Fatal("Failed to start sox", zap.Error(err))
	}
	defer out.close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	ended := make(chan struct{})
	go readLoop(conn, out, logger, ended)

	pcm, err := loadAudio(*audioFile)
	if err != nil {
		logger.Fatal("Failed to load audio", zap.Error(err))
	}

	// Let the greeting start before the caller talks.
	time.Sleep(500 * time.Millisecond)

	total := (len(pcm) + chunkSize - 1) / chunkSize
	for i := 0; i < len(pcm); i += chunkSize {
		end := min(i+chunkSize, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[i:end]); err != nil {
			logger.Error("Send failed", zap.Error(err))
			break
		}
		logger.Debug("📤 Sent chunk", zap.Int("chunk", i/chunkSize+1), zap.Int("of", total))
		time.Sleep(chunkPace)
	}

	if err := sendControl(conn, messages.ActionEndTurn); err != nil {
		logger.Error("Failed to end turn", zap.Error(err))
	}
	logger.Info("✅ Audio sent, waiting for the reply")

	select {
	case <-ended:
		logger.Info("Connection closed")
	case <-interrupt:
		logger.Info("👋 Interrupted, hanging up")
		_ = sendControl(conn, messages.ActionHangup)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	case <-time.After(replyWindow):
		logger.Info("⏰ No more replies")
	}
}

func dialURL(raw, tenant string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if tenant != "" {
		q := u.Query()
		q.Set("tenant", tenant)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func sendControl(conn *websocket.Conn, action string) error {
	payload, err := sonic.Marshal(messages.ControlPayload{Action: action})
	if err != nil {
		return err
	}
	data, err := sonic.Marshal(messages.ClientMessage{Type: messages.ClientControl, Payload: payload})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func readLoop(conn *websocket.Conn, out *speaker, logger *zap.Logger, ended chan<- struct{}) {
	defer close(ended)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Debug("Read loop stopped", zap.Error(err))
			return
		}

		var msg inbound
		if err := sonic.Unmarshal(data, &msg); err != nil {
			logger.Warn("Unparseable frame", zap.Error(err))
			continue
		}

		switch msg.Type {
		case messages.TypeAudio:
			var p messages.AudioResponsePayload
			if sonic.Unmarshal(msg.Payload, &p) != nil {
				continue
			}
			if pcm, err := base64.StdEncoding.DecodeString(p.Data); err == nil {
				out.play(pcm)
			}
		case messages.TypeTranscript:
			var p messages.TranscriptPayload
			if sonic.Unmarshal(msg.Payload, &p) == nil {
				logger.Info("💬 "+p.Role, zap.String("text", p.Text))
			}
		case messages.TypeText:
			var p messages.TextResponsePayload
			if sonic.Unmarshal(msg.Payload, &p) == nil {
				logger.Info("📝 Text", zap.String("text", p.Text))
			}
		case messages.TypeStatus:
			var p messages.StatusPayload
			if sonic.Unmarshal(msg.Payload, &p) != nil {
				continue
			}
			logger.Info("📊 Status", zap.String("status", p.Status), zap.String("message", p.Message))
			if p.Status == messages.StatusCallEnded {
				return
			}
		case messages.TypeError:
			var p messages.ErrorPayload
			_ = sonic.Unmarshal(msg.Payload, &p)
			logger.Error("❌ Server error", zap.String("code", p.Code), zap.String("message", p.Message))
		}
	}
}

// loadAudio returns raw PCM, dropping a canonical WAV header when present.
func loadAudio(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) > wavHeader && string(data[:4]) == "RIFF" {
		return data[wavHeader:], nil
	}
	return data, nil
}
