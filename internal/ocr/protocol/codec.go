package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize bounds a single frame body. Captcha images are small; anything
// larger is treated as stream corruption.
const MaxFrameSize = 32 << 20

// Encoder writes length-prefixed msgpack frames. It is safe for concurrent
// use: each message is written with a single Write under a mutex, so frames
// from concurrent callers never interleave.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// WriteCommand frames and writes c.
func (e *Encoder) WriteCommand(c Command) error {
	env, err := commandEnvelope(c)
	if err != nil {
		return err
	}
	return e.write(env)
}

// WriteReply frames and writes r.
func (e *Encoder) WriteReply(r Reply) error {
	env, err := replyEnvelope(r)
	if err != nil {
		return err
	}
	return e.write(env)
}

func (e *Encoder) write(env envelope) error {
	body, err := msgpack.Marshal(&env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Kind, err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	copy(frame[4:], body)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(frame); err != nil {
		return fmt.Errorf("write %s frame: %w", env.Kind, err)
	}
	return nil
}

// Decoder reads frames written by an Encoder. It is not safe for concurrent
// use; each stream has exactly one reader.
type Decoder struct {
	r   io.Reader
	hdr [4]byte
}

func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: r} }

// ReadCommand returns the next command. io.EOF is returned unwrapped when the
// stream ends cleanly between frames.
func (d *Decoder) ReadCommand() (Command, error) {
	env, err := d.read()
	if err != nil {
		return nil, err
	}
	return env.command()
}

// ReadReply returns the next reply. io.EOF is returned unwrapped when the
// stream ends cleanly between frames.
func (d *Decoder) ReadReply() (Reply, error) {
	env, err := d.read()
	if err != nil {
		return nil, err
	}
	return env.reply()
}

func (d *Decoder) read() (envelope, error) {
	if _, err := io.ReadFull(d.r, d.hdr[:]); err != nil {
		return envelope{}, err
	}
	n := binary.BigEndian.Uint32(d.hdr[:])
	if n > MaxFrameSize {
		return envelope{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(d.r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return envelope{}, fmt.Errorf("read frame body: %w", err)
	}
	var env envelope
	if err := msgpack.Unmarshal(body, &env); err != nil {
		return envelope{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	return env, nil
}
