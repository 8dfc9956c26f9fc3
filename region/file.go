package region

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Tnze/go-mc/nbt"
	mca "github.com/Tnze/go-mc/save/region"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/oriumgames/sieve/format"
)

// ErrChunkNotFound is returned by ReadChunk for a chunk that was never
// generated or saved.
var ErrChunkNotFound = errors.New("chunk not found")

// ErrReadOnly is returned by WriteChunk on a region opened for reading only.
var ErrReadOnly = errors.New("region opened read-only")

// Region gives access to the chunk documents stored in one region file.
// Implementations must be safe for concurrent use.
type Region interface {
	// ReadChunk returns the decoded document of the chunk at pos, or
	// ErrChunkNotFound.
	ReadChunk(pos world.ChunkPos) (format.Compound, error)
	// WriteChunk replaces the whole document of the chunk at pos.
	WriteChunk(pos world.ChunkPos, doc format.Compound) error
	// Close releases the region file.
	Close() error
}

// Opener opens region files by path.
type Opener interface {
	Open(path string, writable bool) (Region, error)
}

// Provider opens and creates region files on disk. The zero value writes
// chunks with zlib compression.
type Provider struct {
	// Compression is used for chunks written through the provider's files.
	Compression Compression
}

// Open opens the region file at path. Files opened without writable are
// never modified.
func (p Provider) Open(path string, writable bool) (Region, error) {
	coord, err := ParseFileName(path)
	if err != nil {
		return nil, err
	}

	var r *mca.Region
	if writable {
		r, err = mca.Open(path)
	} else {
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		r, err = mca.Load(f)
		if err != nil {
			_ = f.Close()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load region %s: %w", path, err)
	}
	return p.newFile(path, coord, r, writable), nil
}

// Create creates an empty region file at path, truncating any existing file.
func (p Provider) Create(path string) (*File, error) {
	coord, err := ParseFileName(path)
	if err != nil {
		return nil, err
	}
	r, err := mca.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create region %s: %w", path, err)
	}
	return p.newFile(path, coord, r, true), nil
}

func (p Provider) newFile(path string, coord Coord, r *mca.Region, writable bool) *File {
	c := p.Compression
	if c == 0 {
		c = CompressionZlib
	}
	return &File{path: path, coord: coord, r: r, writable: writable, compression: c}
}

// File is a region file on disk. Sector access is serialised, so a File may
// be shared between goroutines.
type File struct {
	mu          sync.Mutex
	path        string
	coord       Coord
	r           *mca.Region
	writable    bool
	compression Compression
}

// Path returns the path the file was opened with.
func (f *File) Path() string { return f.path }

// Coord returns the region coordinate of the file.
func (f *File) Coord() Coord { return f.coord }

// ReadChunk reads and decodes the document of the chunk at pos.
func (f *File) ReadChunk(pos world.ChunkPos) (format.Compound, error) {
	if !f.coord.Contains(pos) {
		return nil, fmt.Errorf("chunk %v is not in region %v", pos, f.coord)
	}
	x, z := local(pos)

	// Read sector
	f.mu.Lock()
	if !f.r.ExistSector(x, z) {
		f.mu.Unlock()
		return nil, ErrChunkNotFound
	}
	sector, err := f.r.ReadSector(x, z)
	f.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("read chunk %v sector: %w", pos, err)
	}

	// Decode document
	rd, err := decompress(sector)
	if err != nil {
		return nil, fmt.Errorf("read chunk %v: %w", pos, err)
	}
	if c, ok := rd.(io.Closer); ok {
		defer c.Close()
	}
	var doc format.Compound
	if _, err := nbt.NewDecoder(bufio.NewReader(rd)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode chunk %v: %w", pos, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode chunk %v: empty document", pos)
	}
	return doc, nil
}

// WriteChunk encodes doc and replaces the chunk at pos with it in a single
// sector write.
func (f *File) WriteChunk(pos world.ChunkPos, doc format.Compound) error {
	if !f.writable {
		return ErrReadOnly
	}
	if !f.coord.Contains(pos) {
		return fmt.Errorf("chunk %v is not in region %v", pos, f.coord)
	}
	x, z := local(pos)

	// Encode document
	buf := new(bytes.Buffer)
	if err := nbt.NewEncoder(buf).Encode(doc, ""); err != nil {
		return fmt.Errorf("encode chunk %v: %w", pos, err)
	}
	sector, err := compress(f.compression, buf.Bytes())
	if err != nil {
		return fmt.Errorf("compress chunk %v: %w", pos, err)
	}

	// Write sector
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.r.WriteSector(x, z, sector); err != nil {
		return fmt.Errorf("write chunk %v sector: %w", pos, err)
	}
	return nil
}

// Close closes the underlying file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.r.Close(); err != nil {
		return fmt.Errorf("close %s: %w", f.path, err)
	}
	return nil
}
