package vimg

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sisatech/toml"
	"github.com/thanhpk/randstr"

	"github.com/vorteil/gptguid/pkg/vgpt"
	"github.com/vorteil/gptguid/pkg/vio"
)

// JournalSuffix is appended to an image's base name to form its default
// journal file name.
const JournalSuffix = ".gptjournal"

const journalVersion = 1

// DefaultJournalPath returns the journal path for the image at path. If dir
// is empty the journal lives alongside the image.
func DefaultJournalPath(path, dir string) string {
	if dir == "" {
		dir = filepath.Dir(path)
	}
	return filepath.Join(dir, filepath.Base(path)+JournalSuffix)
}

type journalSector struct {
	Offset int64  `toml:"offset"`
	Data   string `toml:"data"`
}

type journalDocument struct {
	Version   int             `toml:"version"`
	Image     string          `toml:"image"`
	ImageSize int64           `toml:"image-size"`
	Created   time.Time       `toml:"created"`
	Sectors   []journalSector `toml:"sector"`
}

// journal is a snapshot of the sectors a header write is about to replace.
type journal struct {
	path string
}

func (img *Image) beginJournal(h Handle, size int64, offsets ...int64) (*journal, error) {

	_, err := os.Stat(img.journal)
	if err == nil {
		return nil, errors.Wrapf(ErrInvalidImage, "journal %s already exists (recover the image first)", img.journal)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	doc := &journalDocument{
		Version:   journalVersion,
		Image:     img.name,
		ImageSize: size,
		Created:   time.Now().UTC(),
	}

	for _, off := range offsets {
		data, err := vio.ReadFullAt(h, off, vgpt.SectorSize)
		if err != nil {
			return nil, errors.Wrap(err, "reading sector for journal")
		}
		doc.Sectors = append(doc.Sectors, journalSector{
			Offset: off,
			Data:   hex.EncodeToString(data),
		})
	}

	err = writeJournal(img.journal, doc)
	if err != nil {
		return nil, err
	}

	img.log.Debugf("journaled %d sectors of %s to %s", len(offsets), img.name, img.journal)

	return &journal{path: img.journal}, nil

}

func (j *journal) commit() error {
	err := os.Remove(j.path)
	if err != nil {
		return errors.Wrap(err, "removing journal")
	}
	return nil
}

func writeJournal(path string, doc *journalDocument) error {

	tmp := fmt.Sprintf("%s.%s.tmp", path, randstr.Hex(5))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return errors.Wrap(err, "creating journal")
	}
	defer os.Remove(tmp)
	defer f.Close()

	buf := new(bytes.Buffer)
	err = toml.NewEncoder(buf).Encode(doc)
	if err != nil {
		return errors.Wrap(err, "encoding journal")
	}

	gz := gzip.NewWriter(f)

	_, err = gz.Write(buf.Bytes())
	if err != nil {
		return errors.Wrap(err, "writing journal")
	}

	err = gz.Close()
	if err != nil {
		return errors.Wrap(err, "writing journal")
	}

	err = f.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing journal")
	}

	err = f.Close()
	if err != nil {
		return errors.Wrap(err, "closing journal")
	}

	return os.Rename(tmp, path)

}

func readJournal(path string) (*journalDocument, error) {

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNoJournal, path)
		}
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading journal %s", path)
	}
	defer gz.Close()

	data, err := ioutil.ReadAll(gz)
	if err != nil {
		return nil, errors.Wrapf(err, "reading journal %s", path)
	}

	doc := new(journalDocument)
	_, err = toml.Decode(string(data), doc)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding journal %s", path)
	}

	if doc.Version != journalVersion {
		return nil, errors.Errorf("unsupported journal version %d", doc.Version)
	}

	return doc, nil

}

// HasJournal reports whether a journal is waiting to be recovered.
func (img *Image) HasJournal() bool {
	if img.journal == "" {
		return false
	}
	_, err := os.Stat(img.journal)
	return err == nil
}

// Recover writes the sectors saved in the image's journal back to the image
// and deletes the journal, undoing an interrupted WriteGPTHeaders, UpdateGUID
// or Initialize.
func (img *Image) Recover() error {

	h, err := img.writable()
	if err != nil {
		return err
	}

	if img.journal == "" {
		return ErrNoJournal
	}

	doc, err := readJournal(img.journal)
	if err != nil {
		return err
	}

	size, err := img.Size()
	if err != nil {
		return err
	}

	if size != doc.ImageSize {
		return errors.Wrapf(ErrInvalidImage, "journal was taken from a %d byte image, %s is %d bytes", doc.ImageSize, img.name, size)
	}

	type restore struct {
		offset int64
		data   []byte
	}

	var sectors []restore
	for _, s := range doc.Sectors {
		data, err := hex.DecodeString(strings.TrimSpace(s.Data))
		if err != nil {
			return errors.Wrap(err, "corrupt journal")
		}
		if len(data) != vgpt.SectorSize || s.Offset < 0 || s.Offset+vgpt.SectorSize > size {
			return errors.Errorf("corrupt journal: bad sector at offset %d", s.Offset)
		}
		sectors = append(sectors, restore{offset: s.Offset, data: data})
	}

	for _, s := range sectors {
		err = vio.WriteFullAt(h, s.offset, s.data)
		if err != nil {
			return errors.Wrap(err, "restoring sector from journal")
		}
	}

	err = img.sync(h)
	if err != nil {
		return err
	}

	err = os.Remove(img.journal)
	if err != nil {
		return errors.Wrap(err, "removing journal")
	}

	img.log.Debugf("restored %d sectors of %s from %s", len(sectors), img.name, img.journal)

	return nil

}
