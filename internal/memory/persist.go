package memory

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// On-disk layout: a binary matrix file holding a small typed header and the
// raw float32 embeddings, plus a JSON sidecar (<path>.json) with the record
// metadata. Nothing on the load path interprets arbitrary objects.
//
//	magic   [4]byte  "PAVM"
//	version uint32   1
//	dim     uint32
//	count   uint32
//	data    count × dim × float32 (little endian)

var matrixMagic = [4]byte{'P', 'A', 'V', 'M'}

const matrixVersion = 1

// Save persists the store to its configured path, atomically for both the
// matrix and the sidecar (write-then-rename).
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	return s.SaveTo(s.path)
}

// SaveTo persists the store to an explicit path.
func (s *Store) SaveTo(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}

	if err := s.writeMatrix(path); err != nil {
		return err
	}
	return s.writeSidecar(sidecarPath(path))
}

func (s *Store) writeMatrix(path string) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("write memory matrix: %w", err)
	}

	w := bufio.NewWriter(f)
	if _, err := w.Write(matrixMagic[:]); err != nil {
		f.Close()
		return err
	}
	header := []uint32{matrixVersion, uint32(s.dim), uint32(len(s.records))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			f.Close()
			return err
		}
	}
	buf := make([]byte, 4)
	for i := range s.records {
		for _, x := range s.records[i].embedding {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := w.Write(buf); err != nil {
				f.Close()
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) writeSidecar(path string) error {
	records := make([]Record, len(s.records))
	copy(records, s.records)
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memory sidecar: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write memory sidecar: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads the store from its configured path. A missing file is not an
// error (fresh store). When expectDim > 0 a mismatching on-disk dimension
// is rejected with ErrDimensionMismatch, leaving the store untouched.
func (s *Store) Load(expectDim int) (int, error) {
	if s.path == "" {
		return 0, nil
	}
	return s.LoadFrom(s.path, expectDim)
}

// LoadFrom reads the store from an explicit path.
func (s *Store) LoadFrom(path string, expectDim int) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open memory matrix: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic [4]byte
	if _, err := readFull(r, magic[:]); err != nil {
		return 0, fmt.Errorf("read memory header: %w", err)
	}
	if magic != matrixMagic {
		return 0, fmt.Errorf("memory file %s: bad magic", path)
	}
	var version, dim, count uint32
	for _, dst := range []*uint32{&version, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return 0, fmt.Errorf("read memory header: %w", err)
		}
	}
	if version != matrixVersion {
		return 0, fmt.Errorf("memory file %s: unsupported version %d", path, version)
	}
	if expectDim > 0 && dim != 0 && int(dim) != expectDim {
		return 0, fmt.Errorf("%w: file has D=%d, embedder has D=%d", ErrDimensionMismatch, dim, expectDim)
	}

	sidecar, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		return 0, fmt.Errorf("read memory sidecar: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(sidecar, &records); err != nil {
		return 0, fmt.Errorf("decode memory sidecar: %w", err)
	}
	if len(records) != int(count) {
		return 0, fmt.Errorf("memory file %s: sidecar has %d records, matrix has %d", path, len(records), count)
	}

	buf := make([]byte, 4)
	for i := range records {
		vec := make([]float32, dim)
		for j := range vec {
			if _, err := readFull(r, buf); err != nil {
				return 0, fmt.Errorf("read embedding row %d: %w", i, err)
			}
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf))
		}
		records[i].embedding = vec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.dim = int(dim)
	if len(records) == 0 {
		s.dim = 0
	}
	return len(records), nil
}

func sidecarPath(path string) string { return path + ".json" }

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
