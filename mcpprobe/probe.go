// Package mcpprobe verifies configured MCP servers before a session
// starts. Handing the agent a server command that cannot even answer a
// tool listing wastes a whole turn, so each server is launched once,
// asked for its tools and shut down again.
package mcpprobe

import (
	"context"
	"os"
	"os/exec"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/m4xw311/acpcap/config"
	"github.com/m4xw311/acpcap/errors"
)

// Result describes one probed server.
type Result struct {
	Name      string
	ToolCount int
	ToolNames []string
}

// Probe starts the MCP server subprocess, lists its tools across all
// result pages and terminates it. The subprocess is killed on every
// exit path.
func Probe(ctx context.Context, server config.MCPServer) (*Result, error) {
	cmd := exec.Command(server.Command, server.Args...)
	cmd.Stderr = os.Stderr
	for k, v := range server.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if cmd.Env != nil {
		cmd.Env = append(os.Environ(), cmd.Env...)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "acpcap-probe", Version: "v1.0.0"}, nil)
	conn, err := client.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", server.Name)
	}
	defer func() {
		conn.Close()
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	}()

	res := &Result{Name: server.Name}
	toolListParams := &mcpsdk.ListToolsParams{}
	for {
		toolList, err := conn.ListTools(ctx, toolListParams)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", server.Name)
		}
		for _, t := range toolList.Tools {
			res.ToolNames = append(res.ToolNames, t.Name)
		}
		if toolList.NextCursor == "" {
			break
		}
		toolListParams.Cursor = toolList.NextCursor
	}
	res.ToolCount = len(res.ToolNames)
	return res, nil
}

// ProbeAll probes every configured server, collecting results for the
// ones that respond and an error for the first that does not.
func ProbeAll(ctx context.Context, servers []config.MCPServer) ([]*Result, error) {
	var results []*Result
	for _, s := range servers {
		r, err := Probe(ctx, s)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}
