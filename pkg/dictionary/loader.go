/*
Package dictionary reads the word and phrase lists behind the local
completion backend.

Three encodings are understood, chosen by DetectFormat:

	# text: one phrase per line, frequency optional
	120	return nil
	quickSort

	msgpack: {"return nil": 120, "quickSort": 1}

	binary: the chunked dict_0001.bin layout, ranks instead of frequencies

Binary ranks are turned into scores so that rank 1 scores highest.
*/
package dictionary

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultFrequency is given to text entries without a frequency column.
const DefaultFrequency = 1

// Entry is one phrase of a dictionary.
type Entry struct {
	Phrase    string
	Frequency int
}

// Load reads the dictionary at path. A directory is read as a set of
// dict_*.bin chunks.
func Load(path string) ([]Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "dictionary %s", path)
	}
	if info.IsDir() {
		return LoadChunks(path)
	}

	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	entries, err := Read(file, format)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	log.Debugf("Loaded %d entries from %s (%s)", len(entries), path, format)
	return entries, nil
}

// Read decodes entries from r. FormatUnknown sniffs the content.
func Read(r io.Reader, format Format) ([]Entry, error) {
	br := bufio.NewReader(r)
	if format == FormatUnknown {
		f, err := sniff(br)
		if err != nil {
			return nil, err
		}
		format = f
	}

	switch format {
	case FormatText:
		return readText(br)
	case FormatMsgpack:
		return readMsgpack(br)
	case FormatBinary:
		return readBinary(br)
	}
	return nil, ErrUnknownFormat
}

func readText(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(strings.TrimSpace(text), "#") {
			continue
		}

		entry := Entry{Phrase: text, Frequency: DefaultFrequency}
		if freq, phrase, ok := strings.Cut(text, "\t"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(freq)); err == nil {
				entry = Entry{Phrase: phrase, Frequency: n}
			} else {
				log.Debugf("line %d: frequency %q is not a number, using the whole line", line, freq)
			}
		}
		if entry.Phrase == "" || entry.Frequency < 0 {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, errors.Wrap(scanner.Err(), "scan text dictionary")
}

func readMsgpack(r io.Reader) ([]Entry, error) {
	var raw map[string]int
	if err := msgpack.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode msgpack dictionary")
	}
	entries := make([]Entry, 0, len(raw))
	for phrase, freq := range raw {
		if phrase == "" || freq < 0 {
			continue
		}
		entries = append(entries, Entry{Phrase: phrase, Frequency: freq})
	}
	// map order is random, keep loads deterministic
	sort.Slice(entries, func(i, j int) bool { return entries[i].Phrase < entries[j].Phrase })
	return entries, nil
}

func readBinary(r io.Reader) ([]Entry, error) {
	var total int32
	if err := binary.Read(r, binary.LittleEndian, &total); err != nil {
		return nil, errors.Wrap(err, "read chunk header")
	}
	if total < 0 {
		return nil, errors.Newf("invalid entry count %d", total)
	}

	entries := make([]Entry, 0, total)
	for i := 0; i < int(total); i++ {
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrap(err, "read phrase length")
		}
		phrase := make([]byte, n)
		if _, err := io.ReadFull(r, phrase); err != nil {
			return nil, errors.Wrap(err, "read phrase")
		}
		var rank uint16
		if err := binary.Read(r, binary.LittleEndian, &rank); err != nil {
			return nil, errors.Wrap(err, "read rank")
		}
		entries = append(entries, Entry{Phrase: string(phrase), Frequency: 65536 - int(rank)})
	}
	return entries, nil
}

// WriteBinary encodes entries in the chunk layout. Entries are ranked by
// descending frequency.
func WriteBinary(w io.Writer, entries []Entry) error {
	if len(entries) >= 65536 {
		return errors.Newf("too many entries for one chunk: %d", len(entries))
	}
	ranked := append([]Entry(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Frequency > ranked[j].Frequency })

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, int32(len(ranked))); err != nil {
		return err
	}
	for i, e := range ranked {
		if len(e.Phrase) > 0xffff {
			return errors.Newf("phrase too long: %d bytes", len(e.Phrase))
		}
		if err := binary.Write(bw, binary.LittleEndian, uint16(len(e.Phrase))); err != nil {
			return err
		}
		if _, err := bw.WriteString(e.Phrase); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint16(i+1)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LoadChunks reads every dict_NNNN.bin file of dir in chunk order.
func LoadChunks(dir string) ([]Entry, error) {
	files, err := filepath.Glob(filepath.Join(dir, "dict_*.bin"))
	if err != nil {
		return nil, errors.Wrap(err, "scan for chunk files")
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrUnknownFormat, "no chunk files in %s", dir)
	}
	sort.Strings(files)

	var entries []Entry
	for _, file := range files {
		chunk, err := loadChunk(file)
		if err != nil {
			log.Warnf("Skipping chunk %s: %v", file, err)
			continue
		}
		entries = append(entries, chunk...)
	}
	log.Debugf("Loaded %d entries from %d chunks in %s", len(entries), len(files), dir)
	return entries, nil
}

func loadChunk(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return readBinary(bufio.NewReader(file))
}

// ChunkName returns the file name of chunk id.
func ChunkName(id int) string {
	return fmt.Sprintf("dict_%04d.bin", id)
}
