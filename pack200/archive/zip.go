package archive

import (
	"io"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/indrora/pack200/pack200/format"
)

// ReadZip loads every entry of a jar. Directory entries are kept as empty
// resources so that writing the archive back gives the same listing. A jar
// that cannot be read is an ErrInvalidArchive.
func ReadZip(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrapf(format.ErrInvalidArchive, "failed to open jar: %v", err)
	}
	a := &Archive{Comment: zr.Comment}
	for _, f := range zr.File {
		data, err := readFile(f)
		if err != nil {
			return nil, errors.Wrapf(format.ErrInvalidArchive, "failed to read %s: %v", f.Name, err)
		}
		modTime := f.Modified
		if modTime.IsZero() {
			modTime = f.ModTime()
		}
		e := NewEntry(f.Name, data, modTime)
		e.Deflated = f.Method == zip.Deflate
		a.Entries = append(a.Entries, e)
	}
	return a, nil
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	// The size in the header is not trusted for allocation.
	data, err := io.ReadAll(rc)
	if err != nil || len(data) == 0 {
		return nil, err
	}
	return data, nil
}

// WriteZip writes a as a jar. Entries keep their order, compression hint
// and modification time.
func WriteZip(w io.Writer, a *Archive) error {
	zw := zip.NewWriter(w)
	for _, e := range a.Entries {
		hdr := &zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Store,
			Modified: e.ModTime.UTC(),
		}
		if e.Deflated {
			hdr.Method = zip.Deflate
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return errors.Wrapf(err, "failed to add %s", e.Name)
		}
		if _, err := fw.Write(e.Data); err != nil {
			return errors.Wrapf(err, "failed to write %s", e.Name)
		}
	}
	if err := zw.SetComment(a.Comment); err != nil {
		return errors.Wrap(err, "failed to set jar comment")
	}
	return errors.Wrap(zw.Close(), "failed to finish jar")
}
