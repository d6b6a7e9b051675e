package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Nao-Mk2/aws-lambda-tail/internal/model"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/util"
)

type jsonEvent struct {
	Timestamp time.Time `json:"timestamp"`
	LogGroup  string    `json:"logGroup"`
	LogStream string    `json:"logStream"`
	Message   string    `json:"message"`
}

// printer renders events to stdout. The first write error is kept and
// further events are dropped.
type printer struct {
	w        io.Writer
	raw      bool
	enc      *json.Encoder
	query    *util.Query
	writeErr error
}

func newPrinter(w io.Writer, raw, asJSON bool, query *util.Query) *printer {
	p := &printer{w: w, raw: raw, query: query}
	if asJSON {
		p.enc = json.NewEncoder(w)
	}
	return p
}

func (p *printer) print(e model.LogEvent) {
	if p.writeErr != nil {
		return
	}
	msg := strings.TrimSpace(e.Message)
	if p.query != nil {
		v, ok, err := p.query.Apply(msg)
		if err != nil || !ok {
			return
		}
		msg = v
	}

	switch {
	case p.enc != nil:
		p.writeErr = p.enc.Encode(jsonEvent{
			Timestamp: e.Time().UTC(),
			LogGroup:  e.LogGroup,
			LogStream: e.StreamName,
			Message:   msg,
		})
	case p.raw:
		_, p.writeErr = fmt.Fprintln(p.w, msg)
	default:
		_, p.writeErr = fmt.Fprintf(p.w, "%s %s\n", e.Time().Format("15:04:05.000"), msg)
	}
}

func (p *printer) err() error {
	if p.writeErr != nil {
		return fmt.Errorf("write output: %w", p.writeErr)
	}
	return nil
}
