package uid

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	sequenceBits  = 12
	machineIDBits = 10

	maxSequence  = 1<<sequenceBits - 1
	maxMachineID = 1<<machineIDBits - 1
)

// epoch 2020-01-01 00:00:00 UTC
var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

type SnowflakeOptions struct {
	// MachineID 为空时取本机 IPv4 地址的低 10 位
	MachineID *int64 `cfg:"machineID"`
	// MaxBackward 允许等待的时钟回拨，超过返回错误
	MaxBackward time.Duration `cfg:"maxBackward" def:"5ms"`
}

// SnowflakeGenerator 41 位毫秒时间戳 + 10 位机器号 + 12 位序列号
type SnowflakeGenerator struct {
	mu          sync.Mutex
	machineID   int64
	maxBackward int64
	last        int64
	sequence    int64
	now         func() int64
}

func NewSnowflakeGeneratorWithOptions(options *SnowflakeOptions) (*SnowflakeGenerator, error) {
	if options == nil {
		options = &SnowflakeOptions{}
	}
	machineID := machineIDFromIP()
	if options.MachineID != nil {
		machineID = *options.MachineID
	}
	if machineID < 0 || machineID > maxMachineID {
		return nil, errors.Errorf("machine id %d out of range [0, %d]", machineID, maxMachineID)
	}
	maxBackward := options.MaxBackward
	if maxBackward == 0 {
		maxBackward = 5 * time.Millisecond
	}
	return &SnowflakeGenerator{
		machineID:   machineID,
		maxBackward: maxBackward.Milliseconds(),
		now:         func() int64 { return time.Now().UnixMilli() },
	}, nil
}

func machineIDFromIP() int64 {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip := ipnet.IP.To4(); ip != nil {
			return (int64(ip[2])<<8 | int64(ip[3])) & maxMachineID
		}
	}
	return 0
}

func (g *SnowflakeGenerator) Generate(ctx context.Context) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now < g.last {
		if g.last-now > g.maxBackward {
			return 0, errors.Errorf("clock moved backwards by %dms", g.last-now)
		}
		for now < g.last {
			time.Sleep(time.Millisecond)
			now = g.now()
		}
	}

	if now == g.last {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for now <= g.last {
				now = g.now()
			}
		}
	} else {
		g.sequence = 0
	}
	g.last = now

	return (now-epoch)<<(machineIDBits+sequenceBits) | g.machineID<<sequenceBits | g.sequence, nil
}
