package control

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/meeting-copilot/internal/logging"
	"github.com/meeting-copilot/internal/voice"
)

type muteArgs struct {
	Muted bool `json:"muted" jsonschema:"true to stop listening, false to resume"`
}

type modeArgs struct {
	Mode string `json:"mode" jsonschema:"answer, opinion or summarize"`
}

type sourceArgs struct {
	Source string `json:"source" jsonschema:"microphone, system, both, file or discord"`
}

type recentArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of transcripts to return, default 10"`
}

type noArgs struct{}

func textResult(text string) *sdk.CallToolResult {
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: text}}}
}

func errorResult(err error) *sdk.CallToolResult {
	res := textResult(err.Error())
	res.IsError = true
	return res
}

func jsonResult(v interface{}) (*sdk.CallToolResult, any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return textResult(string(b)), nil, nil
}

// NewMCPServer registers the copilot control tools on a fresh MCP server.
func NewMCPServer(ctrl Controller, version string) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: "meeting-copilot", Version: version}, nil)

	sdk.AddTool(server, &sdk.Tool{Name: "mute", Description: "Mute or unmute audio capture"}, func(ctx context.Context, req *sdk.CallToolRequest, args muteArgs) (*sdk.CallToolResult, any, error) {
		ctrl.SetMuted(args.Muted)
		logging.Infow("mcp: mute", "muted", args.Muted)
		return textResult(fmt.Sprintf("muted=%t", args.Muted)), nil, nil
	})

	sdk.AddTool(server, &sdk.Tool{Name: "set_mode", Description: "Select the response mode for the next activation"}, func(ctx context.Context, req *sdk.CallToolRequest, args modeArgs) (*sdk.CallToolResult, any, error) {
		m, err := voice.ParseMode(args.Mode)
		if err != nil {
			return errorResult(err), nil, nil
		}
		if err := ctrl.SetMode(m); err != nil {
			return errorResult(err), nil, nil
		}
		return textResult("mode=" + m.String()), nil, nil
	})

	sdk.AddTool(server, &sdk.Tool{Name: "switch_source", Description: "Switch the audio capture source"}, func(ctx context.Context, req *sdk.CallToolRequest, args sourceArgs) (*sdk.CallToolResult, any, error) {
		if err := ctrl.SwitchSource(args.Source); err != nil {
			return errorResult(err), nil, nil
		}
		return textResult("source=" + args.Source), nil, nil
	})

	sdk.AddTool(server, &sdk.Tool{Name: "status", Description: "Report mute state, mode, source and pipeline counters"}, func(ctx context.Context, req *sdk.CallToolRequest, _ noArgs) (*sdk.CallToolResult, any, error) {
		return jsonResult(ctrl.Status())
	})

	sdk.AddTool(server, &sdk.Tool{Name: "recent_transcripts", Description: "Return the most recent transcripts, oldest first"}, func(ctx context.Context, req *sdk.CallToolRequest, args recentArgs) (*sdk.CallToolResult, any, error) {
		n := args.Limit
		if n <= 0 {
			n = 10
		}
		return jsonResult(ctrl.RecentTranscripts(n))
	})

	sdk.AddTool(server, &sdk.Tool{Name: "quit", Description: "Stop the copilot"}, func(ctx context.Context, req *sdk.CallToolRequest, _ noArgs) (*sdk.CallToolResult, any, error) {
		logging.Infow("mcp: quit requested")
		ctrl.Quit()
		return textResult("stopping"), nil, nil
	})

	return server
}
