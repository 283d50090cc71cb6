package link

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

// Transport 串口链路：ser2net 等串口服务器的 TCP 连接，或已配置好波特率的本地 tty
type Transport interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// Dial 按 target 打开链路
// tcp://host:port 走 TCP；其余视为设备路径（波特率等由 stty/udev 预先配置）
func Dial(ctx context.Context, target string, timeout time.Duration) (Transport, error) {
	if addr, ok := strings.CutPrefix(target, "tcp://"); ok {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", target, err)
		}
		return conn, nil
	}
	if target == "" {
		return nil, fmt.Errorf("link target is empty")
	}
	f, err := os.OpenFile(target, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target, err)
	}
	return f, nil
}
