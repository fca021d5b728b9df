package bgapi

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Command classes and IDs used by the dongle.
const (
	ClassSystem     uint8 = 0
	ClassConnection uint8 = 3
	ClassAttrClient uint8 = 4
	ClassGAP        uint8 = 6

	CmdSystemGetConnections uint8 = 6
	CmdConnectionDisconnect uint8 = 0
	CmdAttrReadByHandle     uint8 = 4
	CmdAttrAttributeWrite   uint8 = 5
	CmdGAPDiscover          uint8 = 2
	CmdGAPConnectDirect     uint8 = 3
	CmdGAPEndProcedure      uint8 = 4

	EvtConnectionStatus       uint8 = 0
	EvtAttrProcedureCompleted uint8 = 1
	EvtAttrAttributeValue     uint8 = 5
	EvtGAPScanResponse        uint8 = 0
)

const (
	discoverModeGeneric    uint8  = 1
	addressTypePublic      uint8  = 0
	connIntervalMin        uint16 = 6
	connIntervalMax        uint16 = 6
	connSupervisionTimeout uint16 = 64
	connSlaveLatency       uint16 = 0
)

// Address is a 6-byte BLE device address as carried on the wire.
type Address [6]byte

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[5], a[4], a[3], a[2], a[1], a[0])
}

func (l *Link) Discover(ctx context.Context) (Packet, error) {
	return l.SendCommand(ctx, ClassGAP, CmdGAPDiscover, []byte{discoverModeGeneric})
}

// EndScan ends any running GAP procedure.
func (l *Link) EndScan(ctx context.Context) (Packet, error) {
	return l.SendCommand(ctx, ClassGAP, CmdGAPEndProcedure, nil)
}

func (l *Link) ConnectDirect(ctx context.Context, addr Address) (Packet, error) {
	payload := make([]byte, 0, 15)
	payload = append(payload, addr[:]...)
	payload = append(payload, addressTypePublic)
	payload = binary.LittleEndian.AppendUint16(payload, connIntervalMin)
	payload = binary.LittleEndian.AppendUint16(payload, connIntervalMax)
	payload = binary.LittleEndian.AppendUint16(payload, connSupervisionTimeout)
	payload = binary.LittleEndian.AppendUint16(payload, connSlaveLatency)

	return l.SendCommand(ctx, ClassGAP, CmdGAPConnectDirect, payload)
}

func (l *Link) Disconnect(ctx context.Context, handle uint8) (Packet, error) {
	return l.SendCommand(ctx, ClassConnection, CmdConnectionDisconnect, []byte{handle})
}

func (l *Link) GetConnections(ctx context.Context) (Packet, error) {
	return l.SendCommand(ctx, ClassSystem, CmdSystemGetConnections, nil)
}

// ReadAttribute requests an attribute value and returns the attribute value
// event that answers it. Notifications for other attributes or connections
// arriving meanwhile are dispatched as usual.
func (l *Link) ReadAttribute(ctx context.Context, handle uint8, attr uint16) (Packet, error) {
	payload := binary.LittleEndian.AppendUint16([]byte{handle}, attr)
	if _, err := l.SendCommand(ctx, ClassAttrClient, CmdAttrReadByHandle, payload); err != nil {
		return Packet{}, err
	}

	return l.WaitEventFunc(ctx, ClassAttrClient, EvtAttrAttributeValue, func(p Packet) bool {
		return len(p.Payload) >= 3 && p.Payload[0] == handle &&
			binary.LittleEndian.Uint16(p.Payload[1:3]) == attr
	})
}

// WriteAttribute writes value and waits for the procedure-completed event.
func (l *Link) WriteAttribute(ctx context.Context, handle uint8, attr uint16, value []byte) (Packet, error) {
	if len(value) > maxPayloadLen-4 {
		return Packet{}, fmt.Errorf("%w: attribute value %d bytes", ErrPayloadTooLarge, len(value))
	}
	payload := make([]byte, 0, 4+len(value))
	payload = append(payload, handle)
	payload = binary.LittleEndian.AppendUint16(payload, attr)
	// #nosec G115 -- length is bounded above.
	payload = append(payload, byte(len(value)))
	payload = append(payload, value...)
	if _, err := l.SendCommand(ctx, ClassAttrClient, CmdAttrAttributeWrite, payload); err != nil {
		return Packet{}, err
	}

	return l.WaitEvent(ctx, ClassAttrClient, EvtAttrProcedureCompleted)
}
