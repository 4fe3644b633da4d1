// Package command is the operator mailbox: a single pending command file the
// dashboard writes and the controller drains.
package command

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"upbot/internal/pkg/jsonutil"
)

type Kind string

const (
	PanicSell      Kind = "panic_sell"
	MasterStop     Kind = "master_stop"
	MasterStart    Kind = "master_start"
	CancelBuyOrder Kind = "cancel_buy_order"
)

type Command struct {
	Kind     Kind      `json:"command"`
	Market   string    `json:"market,omitempty"`
	IssuedAt time.Time `json:"issued_at,omitempty"`
}

//go:embed schema.json
var schemaJSON string

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("command.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("command.json")
})

// Parse validates raw against the mailbox schema and decodes it.
func Parse(raw []byte) (Command, error) {
	schema, err := compiledSchema()
	if err != nil {
		return Command{}, fmt.Errorf("command schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return Command{}, fmt.Errorf("invalid command: %w", err)
	}
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	return cmd, nil
}

// Validate runs cmd through the same schema as Parse.
func Validate(cmd Command) error {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	_, err = Parse(raw)
	return err
}

type Mailbox struct {
	mu   sync.Mutex
	path string
}

func NewMailbox(path string) *Mailbox {
	return &Mailbox{path: path}
}

func (m *Mailbox) Path() string { return m.path }

// Drain takes the pending command, if any. The file is moved aside before it
// is read, so a command is consumed at most once and a command posted while
// draining is kept for the next call. A malformed file is discarded and its
// error returned.
func (m *Mailbox) Drain() (*Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	claimed := m.path + ".processing"
	if err := os.Rename(m.path, claimed); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	raw, err := os.ReadFile(claimed)
	_ = os.Remove(claimed)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "{}" {
		return nil, nil
	}
	cmd, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

// Post validates cmd and writes it as the pending command, replacing any
// command not yet drained.
func (m *Mailbox) Post(cmd Command) error {
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = time.Now()
	}
	if err := Validate(cmd); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return jsonutil.WriteFile(m.path, cmd)
}
