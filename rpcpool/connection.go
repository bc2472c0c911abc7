// Package rpcpool manages subprocess tool-provider servers: one child
// process per provider, spoken to over line-delimited JSON-RPC 2.0 on
// stdio. The wire adapter here generalizes the teacher's LSP process client
// (tools/lsp_process_client.go) to the simpler line-framed protocol this
// spec's providers speak, while keeping the same stdio-pipe-plus-jsonrpc2.Conn
// shape.
package rpcpool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

// LaunchConfig describes how to start a provider's subprocess.
type LaunchConfig struct {
	Provider string
	Command  string
	Args     []string
	Env      []string
	Dir      string
}

// Connection wraps one provider subprocess: its exec.Cmd, the jsonrpc2.Conn
// layered over its stdio, and a mutex serializing requests the way the
// teacher's processLSPClient does (one in-flight request per connection).
type Connection struct {
	cfg    LaunchConfig
	cmd    *exec.Cmd
	conn   *jsonrpc2.Conn
	cancel context.CancelFunc
	mu     sync.Mutex
}

// Dial launches the subprocess and performs the initialize /
// notifications/initialized handshake, matching
// tools/lsp_process_client.go's NewProcessLSPClient/initialize shape but
// with MCP-flavored params instead of LSP's.
func Dial(ctx context.Context, cfg LaunchConfig) (*Connection, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("rpcpool: command required for provider %s", cfg.Provider)
	}
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	if cfg.Dir != "" {
		cmd.Dir = cfg.Dir
	}
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, err
	}

	rwc := &stdioReadWriteCloser{reader: stdout, writer: stdin}
	stream := jsonrpc2.NewBufferedStream(rwc, lineObjectCodec{})

	c := &Connection{cfg: cfg, cmd: cmd, cancel: cancel}

	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		// Unsolicited notifications from the provider (progress, logs) are
		// discarded; this loop is bounded implicitly by the connection's
		// lifetime, never blocking a caller's in-flight request.
		return nil, nil
	})

	conn := jsonrpc2.NewConn(ctx, stream, handler)
	c.conn = conn

	go io.Copy(os.Stderr, stderr)

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}

	if err := c.initialize(ctx); err != nil {
		cancel()
		_ = cmd.Process.Kill()
		return nil, err
	}
	return c, nil
}

type initializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      clientInfo             `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (c *Connection) initialize(ctx context.Context) error {
	params := initializeParams{
		ProtocolVersion: "2024-11-05",
		Capabilities:    map[string]interface{}{},
		ClientInfo:      clientInfo{Name: "flowgate", Version: "0.1"},
	}
	var result json.RawMessage
	if err := c.conn.Call(ctx, "initialize", params, &result); err != nil {
		return &HandshakeFailed{Provider: c.cfg.Provider, Details: err.Error()}
	}
	if err := c.conn.Notify(ctx, "notifications/initialized", struct{}{}); err != nil {
		return &HandshakeFailed{Provider: c.cfg.Provider, Details: err.Error()}
	}
	return nil
}

// CallTool invokes "tools/call" against this provider's subprocess. Calls to
// the same connection are serialized by mu, matching the teacher's
// per-connection mutex discipline.
func (c *Connection) CallTool(ctx context.Context, tool string, arguments map[string]interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	params := map[string]interface{}{
		"name":      tool,
		"arguments": arguments,
	}
	var result json.RawMessage
	if err := c.conn.Call(ctx, "tools/call", params, &result); err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{Provider: c.cfg.Provider, Tool: tool}
		}
		if rpcErr, ok := err.(*jsonrpc2.Error); ok {
			return nil, &RemoteError{Code: int(rpcErr.Code), Message: rpcErr.Message}
		}
		return nil, &ConnectionError{Provider: c.cfg.Provider, Err: err}
	}
	return result, nil
}

// ListTools invokes "tools/list" against this provider's subprocess.
func (c *Connection) ListTools(ctx context.Context) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var result json.RawMessage
	if err := c.conn.Call(ctx, "tools/list", struct{}{}, &result); err != nil {
		return nil, &ConnectionError{Provider: c.cfg.Provider, Err: err}
	}
	return result, nil
}

// Close terminates the subprocess: cancels the context (SIGKILL-equivalent
// via exec.CommandContext), closes the RPC connection, and waits on the
// process with a bound so Close itself never blocks forever.
func (c *Connection) Close() error {
	if c == nil {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		done := make(chan error, 1)
		go func() { done <- c.cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = c.cmd.Process.Kill()
			<-done
		}
	}
	return nil
}

type stdioReadWriteCloser struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioReadWriteCloser) Read(p []byte) (int, error)  { return s.reader.Read(p) }
func (s *stdioReadWriteCloser) Write(p []byte) (int, error) { return s.writer.Write(p) }
func (s *stdioReadWriteCloser) Close() error {
	_ = s.reader.Close()
	return s.writer.Close()
}

// lineObjectCodec implements jsonrpc2.ObjectCodec for newline-delimited JSON
// messages: one JSON object per line, tolerant of non-JSON lines (log
// chatter some providers write to stdout) which are silently skipped rather
// than treated as a framing error. This replaces the teacher's
// VSCodeObjectCodec (Content-Length-header framing), which doesn't apply to
// this family of subprocess protocols.
type lineObjectCodec struct{}

func (lineObjectCodec) WriteObject(stream io.Writer, obj interface{}) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = stream.Write(data)
	return err
}

func (lineObjectCodec) ReadObject(stream *bufio.Reader, v interface{}) error {
	for {
		line, err := stream.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return err
		}
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			if err != nil {
				return err
			}
			continue
		}
		if jsonErr := json.Unmarshal(trimmed, v); jsonErr != nil {
			// Not a JSON-RPC frame (a log line the provider wrote to
			// stdout); discard and keep reading.
			if err != nil {
				return err
			}
			continue
		}
		return nil
	}
}
