package cache

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// entryMagic starts every entry file. The header line carries the expiry
// and the body length, the raw response body follows it unencoded.
const entryMagic = "skylink-cache/1"

// tempMaxAge is how old an abandoned temp file must be before Prune removes it.
const tempMaxAge = time.Hour

// DiskCache keeps NASA responses on disk so repeated runs over the same date
// range skip the network. Entries are sharded into 256 directories by the
// hash of their key.
type DiskCache struct {
	dir string
	ttl time.Duration
}

// NewDiskCache creates a disk cache rooted at dir. ttl applies to Set calls
// that pass 0.
func NewDiskCache(dir string, ttl time.Duration) *DiskCache {
	return &DiskCache{
		dir: dir,
		ttl: ttl,
	}
}

// Get returns a live entry; expired or unreadable entries are removed.
func (c *DiskCache) Get(key string) ([]byte, bool) {
	path := c.path(key)

	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	expires, size, err := readHeader(r)
	if err != nil || time.Now().After(expires) {
		_ = os.Remove(path)
		return nil, false
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		_ = os.Remove(path)
		return nil, false
	}
	return body, true
}

// Set writes the entry through a temp file so readers never see a partial file.
func (c *DiskCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	path := c.path(key)
	shard := filepath.Dir(path)

	if err := os.MkdirAll(shard, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(shard, ".entry-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	header := fmt.Sprintf("%s %d %d\n", entryMagic, time.Now().Add(ttl).UnixNano(), len(value))
	if _, err := io.WriteString(tmp, header); err == nil {
		_, err = tmp.Write(value)
	}
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("commit cache file: %w", err)
	}
	return nil
}

// Delete removes a value from the disk cache. Missing keys are not an error.
func (c *DiskCache) Delete(key string) error {
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Clear removes all cached files
func (c *DiskCache) Clear() error {
	return os.RemoveAll(c.dir)
}

// Prune deletes expired and unreadable entries and abandoned temp files,
// returning how many files it removed. A missing cache dir prunes nothing.
func (c *DiskCache) Prune(now time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		stale := false
		if strings.HasPrefix(d.Name(), ".entry-") {
			info, err := d.Info()
			stale = err == nil && now.Sub(info.ModTime()) > tempMaxAge
		} else {
			stale = !entryLive(path, now)
		}
		if !stale {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("prune cache: %w", err)
	}
	return removed, nil
}

func entryLive(path string, now time.Time) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	expires, _, err := readHeader(bufio.NewReader(f))
	return err == nil && !now.After(expires)
}

func readHeader(r *bufio.Reader) (expires time.Time, size int, err error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("read header: %w", err)
	}
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != entryMagic {
		return time.Time{}, 0, fmt.Errorf("bad header %q", bytes.TrimSpace([]byte(line)))
	}
	nanos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("bad expiry: %w", err)
	}
	size, err = strconv.Atoi(fields[2])
	if err != nil || size < 0 {
		return time.Time{}, 0, fmt.Errorf("bad size %q", fields[2])
	}
	return time.Unix(0, nanos), size, nil
}

// path maps a key to dir/<2 hex>/<64 hex>.entry.
func (c *DiskCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(c.dir, name[:2], name+".entry")
}
