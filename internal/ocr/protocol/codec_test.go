package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
)

func TestCommandStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.WriteCommand(Process{RequestID: "r1", Image: []byte{1, 2, 3}}); err != nil {
		t.Fatalf("write process: %v", err)
	}
	if err := enc.WriteCommand(Stop{}); err != nil {
		t.Fatalf("write stop: %v", err)
	}

	dec := NewDecoder(&buf)
	c, err := dec.ReadCommand()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	p, ok := c.(Process)
	if !ok || p.RequestID != "r1" || !bytes.Equal(p.Image, []byte{1, 2, 3}) {
		t.Fatalf("unexpected first command: %#v", c)
	}
	c, err = dec.ReadCommand()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, ok := c.(Stop); !ok {
		t.Fatalf("expected Stop, got %#v", c)
	}
	if _, err := dec.ReadCommand(); err != io.EOF {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestReplyKindOnCommandStreamIsUnexpected(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	_ = enc.WriteReply(Success{RequestID: "x", Text: "12345"})
	_ = enc.WriteCommand(Stop{})

	dec := NewDecoder(&buf)
	if _, err := dec.ReadCommand(); !errors.Is(err, ErrUnexpectedMessage) {
		t.Fatalf("expected ErrUnexpectedMessage, got %v", err)
	}
	// the bad frame was consumed; the stream continues
	c, err := dec.ReadCommand()
	if err != nil {
		t.Fatalf("read after unexpected: %v", err)
	}
	if _, ok := c.(Stop); !ok {
		t.Fatalf("expected Stop, got %#v", c)
	}
}

func TestReplies(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	_ = enc.WriteReply(Success{RequestID: "a", Text: "12345"})
	_ = enc.WriteReply(Failure{RequestID: "b", Message: "bad image"})
	_ = enc.WriteReply(Fatal{Message: "cannot download"})

	dec := NewDecoder(&buf)
	r, _ := dec.ReadReply()
	if s, ok := r.(Success); !ok || s.RequestID != "a" || s.Text != "12345" {
		t.Fatalf("unexpected success: %#v", r)
	}
	r, _ = dec.ReadReply()
	if f, ok := r.(Failure); !ok || f.RequestID != "b" || f.Message != "bad image" {
		t.Fatalf("unexpected failure: %#v", r)
	}
	r, _ = dec.ReadReply()
	if f, ok := r.(Fatal); !ok || f.Message != "cannot download" {
		t.Fatalf("unexpected fatal: %#v", r)
	}
}

func TestTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	_ = NewEncoder(&buf).WriteCommand(Process{RequestID: "r", Image: make([]byte, 64)})
	data := buf.Bytes()[:buf.Len()-10]
	_, err := NewDecoder(bytes.NewReader(data)).ReadCommand()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)
	_, err := NewDecoder(bytes.NewReader(hdr[:])).ReadReply()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	pr, pw := io.Pipe()
	enc := NewEncoder(pw)
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = enc.WriteCommand(Process{RequestID: string(rune('A' + i%26)), Image: bytes.Repeat([]byte{byte(i)}, 1000)})
		}(i)
	}
	go func() {
		wg.Wait()
		_ = pw.Close()
	}()

	dec := NewDecoder(pr)
	got := 0
	for {
		c, err := dec.ReadCommand()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read %d: %v", got, err)
		}
		p := c.(Process)
		for _, b := range p.Image {
			if b != p.Image[0] {
				t.Fatalf("frame %d corrupted", got)
			}
		}
		got++
	}
	if got != n {
		t.Fatalf("expected %d frames, got %d", n, got)
	}
}
