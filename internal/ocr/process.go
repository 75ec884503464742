package ocr

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"embykeeper/internal/ocr/protocol"
)

// process is a started worker: its command, the encoder over its stdin and
// the stream of replies decoded from its stdout.
type process struct {
	cmd   *exec.Cmd
	pid   int
	stdin io.WriteCloser
	enc   *protocol.Encoder
	log   zerolog.Logger

	// replies is closed once stdout reaches end of stream, which happens
	// only after the process has exited and all of its output was read.
	replies chan protocol.Reply
	// exited is closed after Wait returns; waitErr is valid from then on.
	exited  chan struct{}
	waitErr error

	quit     chan struct{}
	quitOnce sync.Once
}

// startProcess wires pipes into cmd and starts it. Stdout goes through an
// io.Pipe that is closed only after Wait, so the reader sees every reply
// the worker wrote before it sees end of stream.
func startProcess(cmd *exec.Cmd, log zerolog.Logger) (*process, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start worker: %w", err)
	}
	p := &process{
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		stdin:   stdin,
		enc:     protocol.NewEncoder(stdin),
		log:     log.With().Int("worker_pid", cmd.Process.Pid).Logger(),
		replies: make(chan protocol.Reply, 16),
		exited:  make(chan struct{}),
		quit:    make(chan struct{}),
	}
	go p.forwardStderr(errR)
	go p.readReplies(outR)
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
		_ = outW.Close()
		_ = errW.Close()
	}()
	return p, nil
}

func (p *process) readReplies(r io.Reader) {
	defer close(p.replies)
	dec := protocol.NewDecoder(r)
	for {
		reply, err := dec.ReadReply()
		if err != nil {
			if errors.Is(err, protocol.ErrUnexpectedMessage) {
				p.log.Warn().Err(err).Msg("discarding worker message")
				continue
			}
			if err != io.EOF {
				p.log.Debug().Err(err).Msg("worker output ended")
			}
			// Keep the pipe flowing so Wait can return.
			_, _ = io.Copy(io.Discard, r)
			return
		}
		select {
		case p.replies <- reply:
		case <-p.quit:
			_, _ = io.Copy(io.Discard, r)
			return
		}
	}
}

// forwardStderr relays worker log lines into the parent's logger.
func (p *process) forwardStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		p.log.Debug().Str("stream", "stderr").Msg(sc.Text())
	}
	_, _ = io.Copy(io.Discard, r)
}

// submit writes one job to the worker.
func (p *process) submit(job protocol.Process) error {
	return p.enc.WriteCommand(job)
}

// stop asks the worker to exit, kills it after grace, and returns once it
// has exited. Safe to call more than once.
func (p *process) stop(grace time.Duration) {
	p.quitOnce.Do(func() { close(p.quit) })
	go func() {
		// May block while the worker is busy and not reading stdin; a kill
		// unblocks it.
		if err := p.enc.WriteCommand(protocol.Stop{}); err != nil {
			p.log.Debug().Err(err).Msg("send stop")
		}
		_ = p.stdin.Close()
	}()
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-p.exited:
		return
	case <-t.C:
	}
	p.log.Warn().Dur("grace", grace).Msg("worker did not exit in time; killing")
	_ = p.cmd.Process.Kill()
	<-p.exited
}

// exitError describes how the worker ended. Only valid after exited.
func (p *process) exitError() error {
	if p.waitErr != nil {
		return p.waitErr
	}
	return errors.New("exit status 0")
}
