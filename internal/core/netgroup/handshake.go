package netgroup

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/nejmd/thrill/pkg/types"
)

// 握手帧线路格式（固定 26 字节，小端）：
//
//	[magic: uint32]["TRLL"]
//	[version: uint16]
//	[rank: uint32]
//	[session: 16 字节 UUID]
const (
	// handshakeMagic 魔数 "TRLL"
	handshakeMagic uint32 = 0x54524C4C

	// protocolVersion 线路协议版本
	protocolVersion uint16 = 1

	// welcomeSize 握手帧长度
	welcomeSize = 4 + 2 + 4 + 16
)

// welcome 握手帧
type welcome struct {
	Rank    types.Rank
	Session uuid.UUID
}

// marshal 编码握手帧
func (w *welcome) marshal() []byte {
	buf := make([]byte, welcomeSize)
	binary.LittleEndian.PutUint32(buf[0:4], handshakeMagic)
	binary.LittleEndian.PutUint16(buf[4:6], protocolVersion)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(w.Rank))
	copy(buf[10:26], w.Session[:])
	return buf
}

// unmarshal 解码并校验握手帧
func (w *welcome) unmarshal(buf []byte) error {
	if len(buf) != welcomeSize {
		return fmt.Errorf("handshake: short frame (%d bytes)", len(buf))
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != handshakeMagic {
		return ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != protocolVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, v, protocolVersion)
	}
	w.Rank = types.Rank(binary.LittleEndian.Uint32(buf[6:10]))
	copy(w.Session[:], buf[10:26])
	return nil
}

// exchangeWelcome 在底层连接上完成双向握手
//
// 双方各发送一帧并读取对方的一帧；session 不一致立即失败。
// timeout 限制整个握手过程。
func exchangeWelcome(c net.Conn, mine welcome, timeout time.Duration) (welcome, error) {
	if timeout > 0 {
		_ = c.SetDeadline(time.Now().Add(timeout))
		defer func() { _ = c.SetDeadline(time.Time{}) }()
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Write(mine.marshal())
		errCh <- err
	}()

	buf := make([]byte, welcomeSize)
	if _, err := io.ReadFull(c, buf); err != nil {
		return welcome{}, fmt.Errorf("handshake: read: %w", err)
	}
	if err := <-errCh; err != nil {
		return welcome{}, fmt.Errorf("handshake: write: %w", err)
	}

	var theirs welcome
	if err := theirs.unmarshal(buf); err != nil {
		return welcome{}, err
	}
	if theirs.Session != mine.Session {
		return welcome{}, ErrSessionMismatch
	}
	return theirs, nil
}
