package backend

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/nextlevelbuilder/lineproto-gateway/pkg/wireformat"
)

// ReadHandshake reads exactly one line from the backend subprocess's
// stdout and parses it as the {"token","port"} handshake.
func ReadHandshake(r io.Reader) (wireformat.Handshake, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return wireformat.Handshake{}, &InitError{Op: "handshake", Err: err}
	}
	var hs wireformat.Handshake
	if err := json.Unmarshal([]byte(line), &hs); err != nil {
		return wireformat.Handshake{}, &InitError{Op: "handshake", Err: err}
	}
	return hs, nil
}
