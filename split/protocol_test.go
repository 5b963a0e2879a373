package split

import (
	"bytes"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"testing"

	"github.com/IanQS/pTensor/core/ckkswrapper"
	"github.com/IanQS/pTensor/nn"
	"github.com/IanQS/pTensor/ptensor"
)

var (
	engOnce sync.Once
	eng     *ptensor.Engine
	engErr  error
)

func testEngine(t *testing.T) *ptensor.Engine {
	t.Helper()
	engOnce.Do(func() {
		cfg, err := ckkswrapper.PresetConfig(13)
		if err != nil {
			engErr = err
			return
		}
		cfg.Window = 16
		he, err := ckkswrapper.NewHeContext(cfg)
		if err != nil {
			engErr = err
			return
		}
		eng = ptensor.NewEngine(he)
	})
	if engErr != nil {
		t.Fatalf("NewHeContext: %v", engErr)
	}
	return eng
}

func encrypt(t *testing.T, rows [][]float64) *ptensor.PTensor {
	t.Helper()
	p, err := ptensor.FromReal(rows)
	if err != nil {
		t.Fatal(err)
	}
	c, err := testEngine(t).Encrypt(p)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func checkTensor(t *testing.T, label string, got *ptensor.PTensor, want [][]float64) {
	t.Helper()
	plain, err := testEngine(t).Decrypt(got)
	if err != nil {
		t.Fatalf("%s: Decrypt: %v", label, err)
	}
	rows := plain.Real().Rows()
	if len(rows) != len(want) {
		t.Fatalf("%s: %d rows, want %d", label, len(rows), len(want))
	}
	for i := range want {
		for j := range want[i] {
			if math.Abs(rows[i][j]-want[i][j]) > 1e-4 {
				t.Errorf("%s[%d][%d] = %f, want %f", label, i, j, rows[i][j], want[i][j])
			}
		}
	}
}

func TestProtocolFoldRoundTrip(t *testing.T) {
	x := [][]float64{{1, 2, 3}, {4, 5, 6}}
	y := [][]float64{{0, 1, 2}}

	var buf bytes.Buffer
	writer := NewProtocol(nil, &buf)
	if err := writer.SendFold(3, encrypt(t, x), encrypt(t, y)); err != nil {
		t.Fatalf("SendFold failed: %v", err)
	}

	reader := NewProtocol(&buf, nil)
	index, gx, gy, err := reader.ReceiveFold()
	if err != nil {
		t.Fatalf("ReceiveFold failed: %v", err)
	}
	if index != 3 {
		t.Errorf("Index = %d, want 3", index)
	}
	if !gx.HasCachedTranspose() {
		t.Errorf("cached transpose lost in transit")
	}
	checkTensor(t, "x", gx, x)
	checkTensor(t, "y", gy, y)

	xt, err := testEngine(t).T(gx)
	if err != nil {
		t.Fatalf("T: %v", err)
	}
	checkTensor(t, "x^T", xt, [][]float64{{1, 4}, {2, 5}, {3, 6}})
}

func TestProtocolWeightsKeepPacking(t *testing.T) {
	e := testEngine(t)
	totals, err := e.SumAxis(encrypt(t, [][]float64{{1, 2}, {3, 4}}), 1)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := NewProtocol(nil, &buf).SendWeights(7, totals); err != nil {
		t.Fatalf("SendWeights failed: %v", err)
	}
	epoch, w, err := NewProtocol(&buf, nil).ReceiveWeights()
	if err != nil {
		t.Fatalf("ReceiveWeights failed: %v", err)
	}
	if epoch != 7 {
		t.Errorf("Epoch = %d, want 7", epoch)
	}
	if w.Packing() != ptensor.Broadcast {
		t.Errorf("Packing = %v, want broadcast", w.Packing())
	}
	if w.Level() != totals.Level() {
		t.Errorf("Level = %d, want %d", w.Level(), totals.Level())
	}
	checkTensor(t, "weights", w, [][]float64{{3}, {7}})
}

func TestProtocolRejectsPlaintext(t *testing.T) {
	p, err := ptensor.FromReal([][]float64{{1}})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := NewProtocol(nil, &buf).SendWeights(0, p); err == nil {
		t.Errorf("expected an error for a plaintext tensor")
	}
}

func TestProtocolDone(t *testing.T) {
	var buf bytes.Buffer
	writer := NewProtocol(nil, &buf)

	err := writer.SendDone()
	if err != nil {
		t.Fatalf("SendDone failed: %v", err)
	}

	reader := NewProtocol(&buf, nil)
	_, _, _, err = reader.ReceiveFold()
	if err != io.EOF {
		t.Errorf("Expected io.EOF after done, got %v", err)
	}
}

func TestProtocolError(t *testing.T) {
	var buf bytes.Buffer
	writer := NewProtocol(nil, &buf)

	err := writer.SendError(io.ErrUnexpectedEOF)
	if err != nil {
		t.Fatalf("SendError failed: %v", err)
	}

	reader := NewProtocol(&buf, nil)
	_, _, err = reader.ReceiveWeights()
	if err == nil {
		t.Errorf("Expected error after SendError")
	}
}

func TestProtocolUnexpectedType(t *testing.T) {
	var buf bytes.Buffer
	if err := NewProtocol(nil, &buf).SendWeights(1, encrypt(t, [][]float64{{1}})); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := NewProtocol(&buf, nil).ReceiveFold(); err == nil {
		t.Errorf("expected an error when a fold is read from a weights message")
	}
}

func TestProtocolOverPipe(t *testing.T) {
	owner, trainer := net.Pipe()
	defer owner.Close()
	defer trainer.Close()

	x := [][]float64{{1, 2}, {3, 4}}
	ex, ey := encrypt(t, x), encrypt(t, [][]float64{{5, 6}})
	go func() {
		p := NewProtocol(owner, owner)
		for i := 0; i < 2; i++ {
			if err := p.SendFold(i, ex, ey); err != nil {
				p.SendError(err)
				return
			}
		}
		p.SendDone()
	}()

	p := NewProtocol(trainer, trainer)
	var got int
	for {
		_, gx, _, err := p.ReceiveFold()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReceiveFold: %v", err)
		}
		checkTensor(t, "x", gx, x)
		got++
	}
	if got != 2 {
		t.Errorf("received %d folds, want 2", got)
	}
}

func TestMessageTypes(t *testing.T) {
	if MsgFold != 0 {
		t.Errorf("MsgFold = %d, want 0", MsgFold)
	}
	if MsgWeights != 1 {
		t.Errorf("MsgWeights = %d, want 1", MsgWeights)
	}
	if MsgDone != 2 {
		t.Errorf("MsgDone = %d, want 2", MsgDone)
	}
	if MsgError != 3 {
		t.Errorf("MsgError = %d, want 3", MsgError)
	}
	if MsgRefresh != 4 || MsgRefreshed != 5 {
		t.Errorf("MsgRefresh, MsgRefreshed = %d, %d, want 4, 5", MsgRefresh, MsgRefreshed)
	}
}

var errBrokenLink = errors.New("broken link")

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errBrokenLink }

func TestAbortReportsToPeer(t *testing.T) {
	var buf bytes.Buffer
	err := NewProtocol(nil, &buf).Abort(io.ErrUnexpectedEOF)
	if err != io.ErrUnexpectedEOF {
		t.Errorf("Abort = %v, want the original error", err)
	}
	if _, _, _, err := NewProtocol(&buf, nil).ReceiveFold(); err == nil {
		t.Errorf("expected the peer to receive the error")
	}
}

func TestAbortKeepsSendFailure(t *testing.T) {
	err := NewProtocol(nil, brokenWriter{}).Abort(io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Abort = %v, want it to wrap the original error", err)
	}
	if !errors.Is(err, errBrokenLink) {
		t.Errorf("Abort = %v, want it to wrap the send failure", err)
	}
}

func TestServeRefreshesForRemoteTrainer(t *testing.T) {
	e := testEngine(t)
	owner, trainer := net.Pipe()
	defer owner.Close()
	defer trainer.Close()

	// One level below the top, as after an update.
	w, err := e.Mul(encrypt(t, [][]float64{{1, 1}, {2, 2}}), ptensor.Scalar(1))
	if err != nil {
		t.Fatal(err)
	}
	residual := encrypt(t, [][]float64{{1, -3}})

	type served struct {
		epoch int
		w     *ptensor.PTensor
		err   error
	}
	done := make(chan served, 1)
	go func() {
		epoch, final, err := NewProtocol(owner, owner).Serve(nn.LocalKeys{Engine: e})
		done <- served{epoch, final, err}
	}()

	p := NewProtocol(trainer, trainer)
	keys := RemoteKeys{P: p}
	fresh, loss, err := keys.Refresh(w, residual)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if math.Abs(loss-5) > 1e-4 {
		t.Errorf("loss = %f, want 5", loss)
	}
	if want := e.Session().Params.MaxLevel(); fresh.Level() != want {
		t.Errorf("refreshed level = %d, want %d", fresh.Level(), want)
	}
	checkTensor(t, "refreshed", fresh, [][]float64{{1, 1}, {2, 2}})

	if err := p.SendWeights(4, fresh); err != nil {
		t.Fatalf("SendWeights: %v", err)
	}
	got := <-done
	if got.err != nil {
		t.Fatalf("Serve: %v", got.err)
	}
	if got.epoch != 4 {
		t.Errorf("epoch = %d, want 4", got.epoch)
	}
	checkTensor(t, "final", got.w, [][]float64{{1, 1}, {2, 2}})
}

func TestServeStopsOnRemoteError(t *testing.T) {
	var buf bytes.Buffer
	if err := NewProtocol(nil, &buf).SendError(io.ErrUnexpectedEOF); err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewProtocol(&buf, nil).Serve(nn.LocalKeys{Engine: testEngine(t)}); err == nil {
		t.Errorf("expected Serve to stop on a remote error")
	}
}
