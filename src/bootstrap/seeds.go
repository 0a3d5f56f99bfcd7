package bootstrap

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ugorji/go/codec"
)

const jsonSeedListPath = "seeds.json"

// Seed is a known contact used to join the network.
type Seed struct {
	PubKey  string `codec:"pubkey" json:"pubkey"`
	Relay   string `codec:"relay,omitempty" json:"relay,omitempty"`
	Moniker string `codec:"moniker,omitempty" json:"moniker,omitempty"`
}

// JSONSeedList persists the seed list as a JSON file in the data directory.
type JSONSeedList struct {
	l    sync.Mutex
	path string
}

// NewJSONSeedList creates a JSONSeedList backed by seeds.json in base.
func NewJSONSeedList(base string) *JSONSeedList {
	return &JSONSeedList{
		path: filepath.Join(base, jsonSeedListPath),
	}
}

// Path returns the location of the file.
func (j *JSONSeedList) Path() string {
	return j.path
}

// Seeds reads the seed list. A missing or empty file yields no seeds.
// Identities are trimmed but not validated; invalid ones are rejected when
// bootstrapping.
func (j *JSONSeedList) Seeds() ([]Seed, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return []Seed{}, nil
	}
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(buf)) == 0 {
		return []Seed{}, nil
	}

	var seeds []Seed
	dec := codec.NewDecoderBytes(buf, jsonHandle())
	if err := dec.Decode(&seeds); err != nil {
		return nil, err
	}

	for i := range seeds {
		seeds[i].PubKey = strings.TrimSpace(seeds[i].PubKey)
	}

	return seeds, nil
}

// Write persists seeds.
func (j *JSONSeedList) Write(seeds []Seed) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf []byte
	enc := codec.NewEncoderBytes(&buf, jsonHandle())
	if err := enc.Encode(seeds); err != nil {
		return err
	}

	return os.WriteFile(j.path, buf, 0644)
}

func jsonHandle() *codec.JsonHandle {
	jh := &codec.JsonHandle{Indent: 2}
	jh.Canonical = true
	return jh
}
