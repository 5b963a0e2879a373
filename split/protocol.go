// Package split carries encrypted tensors between the data owner, who holds
// the secret key, and the trainer, who only computes on ciphertexts.
package split

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/IanQS/pTensor/nn"
	"github.com/IanQS/pTensor/ptensor"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
)

func init() {
	gob.Register(FoldPayload{})
	gob.Register(WeightsPayload{})
	gob.Register(RefreshPayload{})
	gob.Register(RefreshedPayload{})
}

// MessageType defines message types for the training protocol.
type MessageType int

const (
	MsgFold MessageType = iota
	MsgWeights
	MsgDone
	MsgError
	MsgRefresh
	MsgRefreshed
)

// Message is one protocol frame.
type Message struct {
	Type    MessageType
	Payload interface{}
}

// TensorPayload is the wire form of an encrypted tensor: serialized row
// ciphertexts and, when present, the serialized cached transpose.
type TensorPayload struct {
	Rows, Cols int
	Packing    ptensor.ScalarPacking
	Cipher     [][]byte
	Transpose  [][]byte
}

// FoldPayload carries one encrypted fold.
type FoldPayload struct {
	Index int
	X, Y  TensorPayload
}

// WeightsPayload carries the encrypted weights after a step.
type WeightsPayload struct {
	Epoch   int
	Weights TensorPayload
}

// RefreshPayload asks the key holder to refresh the weights and report the
// loss of the residual.
type RefreshPayload struct {
	Weights, Residual TensorPayload
}

// RefreshedPayload answers a RefreshPayload.
type RefreshedPayload struct {
	Weights TensorPayload
	Loss    float64
}

// EncodeTensor serializes an encrypted tensor.
func EncodeTensor(t *ptensor.PTensor) (TensorPayload, error) {
	if !t.Encrypted() {
		return TensorPayload{}, ptensor.ErrNotEncrypted
	}
	rows, err := marshal(t.Ciphertexts())
	if err != nil {
		return TensorPayload{}, err
	}
	cols, err := marshal(t.CachedTranspose())
	if err != nil {
		return TensorPayload{}, err
	}
	return TensorPayload{Rows: t.Rows(), Cols: t.Cols(), Packing: t.Packing(), Cipher: rows, Transpose: cols}, nil
}

// Tensor rebuilds the encrypted tensor.
func (p TensorPayload) Tensor() (*ptensor.PTensor, error) {
	rows, err := unmarshal(p.Cipher)
	if err != nil {
		return nil, err
	}
	cols, err := unmarshal(p.Transpose)
	if err != nil {
		return nil, err
	}
	return ptensor.FromCiphertexts(p.Rows, p.Cols, rows, cols, p.Packing)
}

func marshal(cts []*rlwe.Ciphertext) ([][]byte, error) {
	if len(cts) == 0 {
		return nil, nil
	}
	out := make([][]byte, len(cts))
	for i, ct := range cts {
		b, err := ct.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshal ciphertext %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

func unmarshal(data [][]byte) ([]*rlwe.Ciphertext, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out := make([]*rlwe.Ciphertext, len(data))
	for i, b := range data {
		ct := new(rlwe.Ciphertext)
		if err := ct.UnmarshalBinary(b); err != nil {
			return nil, fmt.Errorf("unmarshal ciphertext %d: %w", i, err)
		}
		out[i] = ct
	}
	return out, nil
}

// Protocol handles framing over one connection.
type Protocol struct {
	encoder *gob.Encoder
	decoder *gob.Decoder
}

// NewProtocol creates a new protocol handler. Either side may be nil when
// the protocol is used in one direction only.
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	p := &Protocol{}
	if w != nil {
		p.encoder = gob.NewEncoder(w)
	}
	if r != nil {
		p.decoder = gob.NewDecoder(r)
	}
	return p
}

// Send sends a message.
func (p *Protocol) Send(msg *Message) error {
	return p.encoder.Encode(msg)
}

// Receive receives a message.
func (p *Protocol) Receive() (*Message, error) {
	var msg Message
	if err := p.decoder.Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendFold sends the encrypted features and labels of one fold.
func (p *Protocol) SendFold(index int, x, y *ptensor.PTensor) error {
	xp, err := EncodeTensor(x)
	if err != nil {
		return fmt.Errorf("fold %d features: %w", index, err)
	}
	yp, err := EncodeTensor(y)
	if err != nil {
		return fmt.Errorf("fold %d labels: %w", index, err)
	}
	return p.Send(&Message{Type: MsgFold, Payload: FoldPayload{Index: index, X: xp, Y: yp}})
}

// SendWeights sends the encrypted weights after epoch.
func (p *Protocol) SendWeights(epoch int, w *ptensor.PTensor) error {
	wp, err := EncodeTensor(w)
	if err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	return p.Send(&Message{Type: MsgWeights, Payload: WeightsPayload{Epoch: epoch, Weights: wp}})
}

// SendDone signals completion.
func (p *Protocol) SendDone() error {
	return p.Send(&Message{Type: MsgDone})
}

// SendError sends an error message.
func (p *Protocol) SendError(err error) error {
	return p.Send(&Message{Type: MsgError, Payload: err.Error()})
}

// Abort reports err to the peer and returns it, joined with any failure to
// send the report.
func (p *Protocol) Abort(err error) error {
	if sendErr := p.SendError(err); sendErr != nil {
		return errors.Join(err, fmt.Errorf("report error to peer: %w", sendErr))
	}
	return err
}

// SendRefresh asks the peer to refresh w and score residual.
func (p *Protocol) SendRefresh(w, residual *ptensor.PTensor) error {
	wp, err := EncodeTensor(w)
	if err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	rp, err := EncodeTensor(residual)
	if err != nil {
		return fmt.Errorf("residual: %w", err)
	}
	return p.Send(&Message{Type: MsgRefresh, Payload: RefreshPayload{Weights: wp, Residual: rp}})
}

// SendRefreshed answers a refresh request.
func (p *Protocol) SendRefreshed(w *ptensor.PTensor, loss float64) error {
	wp, err := EncodeTensor(w)
	if err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	return p.Send(&Message{Type: MsgRefreshed, Payload: RefreshedPayload{Weights: wp, Loss: loss}})
}

// ReceiveRefreshed receives the answer to a refresh request.
func (p *Protocol) ReceiveRefreshed() (*ptensor.PTensor, float64, error) {
	msg, err := p.expect(MsgRefreshed)
	if err != nil {
		return nil, 0, err
	}
	payload, ok := msg.Payload.(RefreshedPayload)
	if !ok {
		return nil, 0, fmt.Errorf("invalid refreshed payload type")
	}
	w, err := payload.Weights.Tensor()
	if err != nil {
		return nil, 0, fmt.Errorf("weights: %w", err)
	}
	return w, payload.Loss, nil
}

// Serve answers refresh requests with keys until the peer sends its final
// weights, which are returned. A failing refresh is reported to the peer.
func (p *Protocol) Serve(keys nn.KeyHolder) (int, *ptensor.PTensor, error) {
	for {
		msg, err := p.Receive()
		if err != nil {
			return 0, nil, err
		}
		switch msg.Type {
		case MsgRefresh:
			payload, ok := msg.Payload.(RefreshPayload)
			if !ok {
				return 0, nil, p.Abort(fmt.Errorf("invalid refresh payload type"))
			}
			w, err := payload.Weights.Tensor()
			if err != nil {
				return 0, nil, p.Abort(fmt.Errorf("weights: %w", err))
			}
			residual, err := payload.Residual.Tensor()
			if err != nil {
				return 0, nil, p.Abort(fmt.Errorf("residual: %w", err))
			}
			next, loss, err := keys.Refresh(w, residual)
			if err != nil {
				return 0, nil, p.Abort(err)
			}
			if err := p.SendRefreshed(next, loss); err != nil {
				return 0, nil, err
			}
		case MsgWeights:
			payload, ok := msg.Payload.(WeightsPayload)
			if !ok {
				return 0, nil, fmt.Errorf("invalid weights payload type")
			}
			w, err := payload.Weights.Tensor()
			if err != nil {
				return 0, nil, fmt.Errorf("weights: %w", err)
			}
			return payload.Epoch, w, nil
		case MsgError:
			return 0, nil, fmt.Errorf("remote error: %v", msg.Payload)
		default:
			return 0, nil, fmt.Errorf("unexpected message %d while serving", msg.Type)
		}
	}
}

// RemoteKeys forwards refreshes to the key holder at the other end of P.
type RemoteKeys struct {
	P *Protocol
}

// Refresh sends weights and residual to the key holder and waits for the
// refreshed weights and the loss.
func (k RemoteKeys) Refresh(weights, residual *ptensor.PTensor) (*ptensor.PTensor, float64, error) {
	if err := k.P.SendRefresh(weights, residual); err != nil {
		return nil, 0, err
	}
	return k.P.ReceiveRefreshed()
}

// expect receives the next message and checks its type. MsgDone maps to
// io.EOF and MsgError to a remote error.
func (p *Protocol) expect(want MessageType) (*Message, error) {
	msg, err := p.Receive()
	if err != nil {
		return nil, err
	}
	switch msg.Type {
	case MsgError:
		return nil, fmt.Errorf("remote error: %v", msg.Payload)
	case MsgDone:
		return nil, io.EOF
	case want:
		return msg, nil
	}
	return nil, fmt.Errorf("expected message %d, got %d", want, msg.Type)
}

// ReceiveFold receives one fold.
func (p *Protocol) ReceiveFold() (index int, x, y *ptensor.PTensor, err error) {
	msg, err := p.expect(MsgFold)
	if err != nil {
		return 0, nil, nil, err
	}
	payload, ok := msg.Payload.(FoldPayload)
	if !ok {
		return 0, nil, nil, fmt.Errorf("invalid fold payload type")
	}
	if x, err = payload.X.Tensor(); err != nil {
		return 0, nil, nil, fmt.Errorf("fold %d features: %w", payload.Index, err)
	}
	if y, err = payload.Y.Tensor(); err != nil {
		return 0, nil, nil, fmt.Errorf("fold %d labels: %w", payload.Index, err)
	}
	return payload.Index, x, y, nil
}

// ReceiveWeights receives the weights of one epoch.
func (p *Protocol) ReceiveWeights() (int, *ptensor.PTensor, error) {
	msg, err := p.expect(MsgWeights)
	if err != nil {
		return 0, nil, err
	}
	payload, ok := msg.Payload.(WeightsPayload)
	if !ok {
		return 0, nil, fmt.Errorf("invalid weights payload type")
	}
	w, err := payload.Weights.Tensor()
	if err != nil {
		return 0, nil, fmt.Errorf("weights: %w", err)
	}
	return payload.Epoch, w, nil
}
