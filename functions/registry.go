// Package functions declares the tools the voice agent may call during a
// live conversation and dispatches the model's calls to their handlers.
package functions

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Handler runs one tool call. The returned map is sent back to the model.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

type tool struct {
	decl    *genai.FunctionDeclaration
	handler Handler
}

// Registry holds the tools of one call, in registration order.
type Registry struct {
	tools []tool
	index map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a tool. A second registration under the same name replaces the first.
func (r *Registry) Register(decl *genai.FunctionDeclaration, handler Handler) {
	if i, ok := r.index[decl.Name]; ok {
		r.tools[i] = tool{decl: decl, handler: handler}
		return
	}
	r.index[decl.Name] = len(r.tools)
	r.tools = append(r.tools, tool{decl: decl, handler: handler})
}

// Tools returns the declarations in the form the Live session expects.
func (r *Registry) Tools() []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(r.tools))
	for i, t := range r.tools {
		decls[i] = t.decl
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// Names lists the registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.decl.Name
	}
	return names
}

// Dispatch runs the handler for call. Failures are reported to the model
// in the response body rather than returned, so the conversation goes on.
func (r *Registry) Dispatch(ctx context.Context, call *genai.FunctionCall) *genai.FunctionResponse {
	resp := &genai.FunctionResponse{ID: call.ID, Name: call.Name}

	i, ok := r.index[call.Name]
	if !ok {
		resp.Response = map[string]any{"error": fmt.Sprintf("unknown function: %s", call.Name)}
		return resp
	}

	out, err := r.tools[i].handler(ctx, call.Args)
	if err != nil {
		resp.Response = map[string]any{"error": err.Error()}
		return resp
	}
	if out == nil {
		out = map[string]any{"result": "ok"}
	}
	resp.Response = out
	return resp
}
