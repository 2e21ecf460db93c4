package proof

import (
	"encoding/json"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/types"
)

// FileProof is a merkle inclusion proof that a file's hash is leaf i of the
// tree over a layer's file hashes, committing to Root.
type FileProof struct {
	Version     int       `json:"version"`
	ProofType   string    `json:"proof_type"`
	Target      types.Hash `json:"target"`
	Root        types.Hash `json:"root"`
	Siblings    []Sibling `json:"siblings"`
}

// ProveFile builds a FileProof for the file at path among files (in the
// same order they appear in the committed layer), claiming root.
func ProveFile(files []types.FileEntry, path string, root types.Hash) (*FileProof, error) {
	idx := -1
	leaves := make([]types.Hash, len(files))
	for i, f := range files {
		leaves[i] = f.Hash
		if f.Path == path {
			idx = i
		}
	}
	if idx < 0 {
		return nil, digstoreerr.New(digstoreerr.FileNotFound, "file not present in layer").WithPath(path)
	}

	t := buildTree(leaves)
	if computedRoot := t.root(); computedRoot != root {
		return nil, digstoreerr.New(digstoreerr.ProofGenerationFailed, "claimed root does not match layer's file set")
	}

	return &FileProof{
		Version:   1,
		ProofType: "file",
		Target:    files[idx].Hash,
		Root:      root,
		Siblings:  t.path(idx),
	}, nil
}

// Verify checks that the proof's sibling path folds leaf into root, and
// that the proof's own target/root match the caller's expectations.
func Verify(p *FileProof, expectedTarget, expectedRoot types.Hash) bool {
	if p == nil {
		return false
	}
	if p.Target != expectedTarget || p.Root != expectedRoot {
		return false
	}
	return VerifyPath(p.Target, p.Siblings, p.Root)
}

// MarshalJSON produces the hex-encoded wire schema used for file proofs.
func (p *FileProof) MarshalJSON() ([]byte, error) {
	type wire struct {
		Version   int    `json:"version"`
		ProofType string `json:"proof_type"`
		Target    string `json:"target"`
		Root      string `json:"root"`
		Siblings  []struct {
			Hash     string `json:"hash"`
			Position string `json:"position"`
		} `json:"siblings"`
	}
	w := wire{Version: p.Version, ProofType: p.ProofType, Target: p.Target.ToHex(), Root: p.Root.ToHex()}
	for _, s := range p.Siblings {
		w.Siblings = append(w.Siblings, struct {
			Hash     string `json:"hash"`
			Position string `json:"position"`
		}{Hash: s.Hash.ToHex(), Position: string(s.Position)})
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the wire schema back into a FileProof.
func (p *FileProof) UnmarshalJSON(data []byte) error {
	type wire struct {
		Version   int    `json:"version"`
		ProofType string `json:"proof_type"`
		Target    string `json:"target"`
		Root      string `json:"root"`
		Siblings  []struct {
			Hash     string `json:"hash"`
			Position string `json:"position"`
		} `json:"siblings"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return digstoreerr.Wrap(digstoreerr.InvalidProofFormat, err, "decoding file proof JSON")
	}
	target, err := types.FromHex(w.Target)
	if err != nil {
		return digstoreerr.New(digstoreerr.InvalidProofFormat, "bad target hash in proof")
	}
	root, err := types.FromHex(w.Root)
	if err != nil {
		return digstoreerr.New(digstoreerr.InvalidProofFormat, "bad root hash in proof")
	}
	p.Version = w.Version
	p.ProofType = w.ProofType
	p.Target = target
	p.Root = root
	p.Siblings = nil
	for _, s := range w.Siblings {
		h, err := types.FromHex(s.Hash)
		if err != nil {
			return digstoreerr.New(digstoreerr.InvalidProofFormat, "bad sibling hash in proof")
		}
		p.Siblings = append(p.Siblings, Sibling{Hash: h, Position: Position(s.Position)})
	}
	return nil
}
