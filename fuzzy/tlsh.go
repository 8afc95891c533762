package fuzzy

import (
	"bufio"
	"io"

	"github.com/glaslos/tlsh"
)

// TLSHHasher needs at least a few hundred bytes of varied input; shorter
// files return an error.
type TLSHHasher struct{}

func (TLSHHasher) Name() string {
	return "tlsh"
}

func (TLSHHasher) Hash(r io.Reader) (string, error) {
	digest, err := tlsh.HashReader(bufio.NewReader(r))
	if err != nil {
		return "", err
	}
	return digest.String(), nil
}

func init() {
	Register(TLSHHasher{})
}
