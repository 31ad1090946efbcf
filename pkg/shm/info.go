package shm

import (
	"io/fs"
	"os"
)

const timeLayout = "2006-01-02 15:04:05"

var permBits = [9]struct {
	bit fs.FileMode
	ch  byte
}{
	{0o400, 'r'}, {0o200, 'w'}, {0o100, 'x'},
	{0o040, 'r'}, {0o020, 'w'}, {0o010, 'x'},
	{0o004, 'r'}, {0o002, 'w'}, {0o001, 'x'},
}

// permissionString renders the owner, group and other bits of mode as rwxrwxrwx.
func permissionString(mode fs.FileMode) string {
	var b [9]byte
	for i, p := range permBits {
		b[i] = '-'
		if mode&p.bit != 0 {
			b[i] = p.ch
		}
	}
	return string(b[:])
}

// Info stats the named file. Every field but Path is zero when it does not
// exist; an invalid name yields a zero SegmentInfo.
func (p *FilePolicy) Info(name string) SegmentInfo {
	if validName(name) != nil {
		return SegmentInfo{}
	}
	info := SegmentInfo{Path: p.Path(name)}
	st, err := os.Stat(info.Path)
	if err != nil {
		return info
	}
	info.Exists = true
	info.Size = st.Size()
	info.Permissions = permissionString(st.Mode())
	info.LastModified = st.ModTime().Local().Format(timeLayout)
	return info
}
