package compositor

import (
	"encoding/binary"
	"fmt"
	"io"

	"barbridge/internal/domain"
)

// The sway/i3 IPC wire format: a 6-byte magic, then payload length and
// message type as little-endian u32s, then a JSON payload. Replies echo the
// request type; asynchronous events set the high bit.
const (
	ipcMagic   = "i3-ipc"
	headerSize = len(ipcMagic) + 8

	// Payloads larger than this indicate a corrupt or desynced stream.
	maxPayload = 1 << 24
)

// Request message types.
const (
	msgRunCommand    uint32 = 0
	msgGetWorkspaces uint32 = 1
	msgSubscribe     uint32 = 2
	msgGetVersion    uint32 = 7
)

// Event message types (high bit set).
const (
	eventFlag uint32 = 1 << 31

	evWorkspace       uint32 = eventFlag | 0
	evMode            uint32 = eventFlag | 2
	evWindow          uint32 = eventFlag | 3
	evBarConfigUpdate uint32 = eventFlag | 4
	evBinding         uint32 = eventFlag | 5
	evShutdown        uint32 = eventFlag | 6
	evTick            uint32 = eventFlag | 7
	evBarStateUpdate  uint32 = eventFlag | 0x14
	evInput           uint32 = eventFlag | 0x15
)

// kindNames maps event kinds to the names the SUBSCRIBE payload expects.
var kindNames = map[domain.EventKind]string{
	domain.EventWorkspace: "workspace",
	domain.EventMode:      "mode",
	domain.EventWindow:    "window",
	domain.EventBinding:   "binding",
	domain.EventShutdown:  "shutdown",
	domain.EventTick:      "tick",
	domain.EventBarState:  "bar_state_update",
	domain.EventInput:     "input",
}

// classifyEvent maps a wire event type to an EventKind. Unrecognized types
// map to EventUnknown so protocol additions flow through as Unknown events
// instead of failing the stream.
func classifyEvent(typ uint32) domain.EventKind {
	switch typ {
	case evWorkspace:
		return domain.EventWorkspace
	case evMode:
		return domain.EventMode
	case evWindow:
		return domain.EventWindow
	case evBinding:
		return domain.EventBinding
	case evShutdown:
		return domain.EventShutdown
	case evTick:
		return domain.EventTick
	case evBarStateUpdate:
		return domain.EventBarState
	case evInput:
		return domain.EventInput
	default:
		return domain.EventUnknown
	}
}

// subscribeNames converts a kind set to wire event names, skipping kinds
// the protocol has no name for.
func subscribeNames(kinds []domain.EventKind) []string {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		if name, ok := kindNames[k]; ok {
			names = append(names, name)
		}
	}
	return names
}

// writeMessage frames and writes one IPC message.
func writeMessage(w io.Writer, typ uint32, payload []byte) error {
	buf := make([]byte, headerSize+len(payload))
	copy(buf, ipcMagic)
	binary.LittleEndian.PutUint32(buf[len(ipcMagic):], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[len(ipcMagic)+4:], typ)
	copy(buf[headerSize:], payload)
	_, err := w.Write(buf)
	return err
}

// readMessage reads one framed IPC message. A bad magic or an implausible
// length means the stream is desynced, which is a protocol violation the
// bridge cannot recover from.
func readMessage(r io.Reader) (uint32, []byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	if string(header[:len(ipcMagic)]) != ipcMagic {
		return 0, nil, domain.NewBridgeError("compositor.read", domain.ErrProtocol,
			fmt.Sprintf("bad magic %q", header[:len(ipcMagic)]))
	}
	length := binary.LittleEndian.Uint32(header[len(ipcMagic):])
	typ := binary.LittleEndian.Uint32(header[len(ipcMagic)+4:])
	if length > maxPayload {
		return 0, nil, domain.NewBridgeError("compositor.read", domain.ErrProtocol,
			fmt.Sprintf("implausible payload length %d", length))
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return typ, payload, nil
}
