package mount

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultMountinfoPath is where the kernel exposes the mount table for the
// calling process.
const DefaultMountinfoPath = "/proc/self/mountinfo"

// Table reads the live mount table from the given mountinfo file and returns
// it sorted per Compare. An empty path selects DefaultMountinfoPath.
func Table(path string) ([]Mount, error) {
	if path == "" {
		path = DefaultMountinfoPath
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mount table: %w", err)
	}
	defer f.Close()
	return parseMountinfo(f)
}

// parseMountinfo parses mountinfo lines of the form
//
//	36 35 98:0 /mnt1 /mnt2 rw,noatime master:1 - ext3 /dev/root rw
//
// keeping the device number (field 3) and mount point (field 5, with octal
// escapes decoded).
func parseMountinfo(r io.Reader) ([]Mount, error) {
	var mounts []Mount
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return nil, fmt.Errorf("malformed mountinfo line %q", line)
		}
		major, minor, ok := strings.Cut(fields[2], ":")
		if !ok {
			return nil, fmt.Errorf("malformed device number %q", fields[2])
		}
		maj, err := strconv.ParseUint(major, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed device number %q: %w", fields[2], err)
		}
		mnr, err := strconv.ParseUint(minor, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed device number %q: %w", fields[2], err)
		}
		mounts = append(mounts, New(unix.Mkdev(uint32(maj), uint32(mnr)), unescapePath(fields[4])))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}
	slices.SortFunc(mounts, Mount.Compare)
	return mounts, nil
}

// unescapePath decodes the \ooo octal escapes the kernel uses for spaces,
// tabs and backslashes in mount points.
func unescapePath(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool { return c >= '0' && c <= '7' }
