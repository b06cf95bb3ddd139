package memory

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrInvalidSegment is returned for a malformed segment description.
var ErrInvalidSegment = errors.New("segment must be given as ADDR=PATH")

// A Segment places the content of a dump file at an address.
type Segment struct {
	Addr uint64
	Path string
}

func (s Segment) String() string {
	return fmt.Sprintf("%#x=%s", s.Addr, s.Path)
}

// ParseSegment parses the ADDR=PATH form used on the command line, for
// example "0xfffffffffffff000=pml4.bin".
func ParseSegment(s string) (Segment, error) {
	addrStr, path, found := strings.Cut(s, "=")
	if !found || path == "" {
		return Segment{}, fmt.Errorf("%w: %q", ErrInvalidSegment, s)
	}

	addr, err := strconv.ParseUint(strings.TrimSpace(addrStr), 0, 64)
	if err != nil {
		return Segment{}, fmt.Errorf("%w: bad address in %q", ErrInvalidSegment, s)
	}

	return Segment{Addr: addr, Path: path}, nil
}

// ParseSegments parses a comma separated list of segments. Blank items are
// skipped.
func ParseSegments(list string) ([]Segment, error) {
	var segments []Segment

	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		seg, err := ParseSegment(item)
		if err != nil {
			return nil, err
		}

		segments = append(segments, seg)
	}

	return segments, nil
}

// LoadSegment copies everything r yields into the storage starting at addr
// and returns the number of bytes written.
func (s *Storage) LoadSegment(addr uint64, r io.Reader) (uint64, error) {
	buf := make([]byte, s.unitSize)
	loaded := uint64(0)

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if werr := s.Write(addr+loaded, buf[:n]); werr != nil {
				return loaded, werr
			}

			loaded += uint64(n)
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return loaded, nil
		}

		if err != nil {
			return loaded, err
		}
	}
}

// LoadFile loads the file of seg at its address.
func (s *Storage) LoadFile(seg Segment) (uint64, error) {
	f, err := os.Open(seg.Path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := s.LoadSegment(seg.Addr, f)
	if err != nil {
		return n, fmt.Errorf("loading %s: %w", seg, err)
	}

	return n, nil
}

// Load creates a storage holding all the given segments. Later segments
// overwrite earlier ones where they overlap.
func Load(segments []Segment) (*Storage, error) {
	s := NewStorage()

	for _, seg := range segments {
		if _, err := s.LoadFile(seg); err != nil {
			return nil, err
		}
	}

	return s, nil
}
