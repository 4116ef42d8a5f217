package cmd

import (
	"io"

	"github.com/ugorji/go/codec"

	"github.com/darkhz/btspp/spp"
)

// report is the summary of a session printed with --json.
type report struct {
	Role  string            `json:"role"`
	Name  string            `json:"name"`
	State string            `json:"state"`
	Peer  string            `json:"peer,omitempty"`
	Stats spp.StatsSnapshot `json:"stats"`
}

// newReport builds the report of a link.
func newReport(role string, link sessionLink) report {
	r := report{
		Role:  role,
		Name:  link.Connection().Name(),
		State: link.StateTitle(),
		Stats: link.Stats(),
	}

	if peer, ok := link.Connection().Peer(); ok {
		r.Peer = peer.String()
	}

	return r
}

// writeJSON encodes v as JSON, followed by a newline.
func writeJSON(w io.Writer, v any) error {
	handle := codec.JsonHandle{}
	handle.TypeInfos = codec.NewTypeInfos([]string{"json"})

	if err := codec.NewEncoder(w, &handle).Encode(v); err != nil {
		return err
	}

	_, err := io.WriteString(w, "\n")

	return err
}
