package netgroup

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nejmd/thrill/config"
	pkgif "github.com/nejmd/thrill/pkg/interfaces"
	"github.com/nejmd/thrill/pkg/types"
)

// dialRetryInterval 拨号失败后的重试间隔
//
// 组内 worker 启动时刻不同，低序号的监听器可能尚未就绪。
const dialRetryInterval = 100 * time.Millisecond

// Establish 建立对等组网格
//
// 连接方向固定：序号高的一方拨号，低的一方接受，每对 worker
// 之间恰好一条连接。所有 worker 必须使用逐项一致的 Peers 列表
// 与相同的 SessionID。任何一条连接的握手失败都会使整个建组
// 失败（bootstrap 阶段 fail-fast）。
func Establish(ctx context.Context, cfg *config.NetConfig) (*Group, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("netgroup: %w", err)
	}

	n := len(cfg.Peers)
	myRank := types.Rank(cfg.MyRank)

	session := uuid.Nil
	if cfg.SessionID != "" {
		var err error
		if session, err = uuid.Parse(cfg.SessionID); err != nil {
			return nil, fmt.Errorf("netgroup: %w", err)
		}
	}
	mine := welcome{Rank: myRank, Session: session}
	hsTimeout := cfg.HandshakeTimeout.Duration()

	ln, err := net.Listen("tcp", cfg.ListenAddress())
	if err != nil {
		return nil, fmt.Errorf("netgroup: listen %s: %w", cfg.ListenAddress(), err)
	}
	defer ln.Close()

	var mu sync.Mutex
	conns := make([]pkgif.Connection, n)

	eg, gctx := errgroup.WithContext(ctx)

	// 出错或取消时解除 Accept 阻塞
	acceptDone := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			ln.Close()
		case <-acceptDone:
		}
	}()

	// 接受序号更高的对端
	expectAccept := n - 1 - int(myRank)
	eg.Go(func() error {
		defer close(acceptDone)
		for i := 0; i < expectAccept; i++ {
			raw, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return fmt.Errorf("accept: %w", err)
			}

			theirs, err := exchangeWelcome(raw, mine, hsTimeout)
			if err != nil {
				raw.Close()
				return err
			}
			if theirs.Rank <= myRank || !theirs.Rank.Valid(n) {
				raw.Close()
				return fmt.Errorf("%w: %v", ErrRankConflict, theirs.Rank)
			}

			mu.Lock()
			if conns[theirs.Rank] != nil {
				mu.Unlock()
				raw.Close()
				return fmt.Errorf("%w: %v", ErrRankConflict, theirs.Rank)
			}
			conns[theirs.Rank] = newConn(raw, myRank, theirs.Rank)
			mu.Unlock()

			logger.Debug("peer accepted", "rank", myRank, "peer", theirs.Rank)
		}
		return nil
	})

	// 拨号序号更低的对端
	for r := types.Rank(0); r < myRank; r++ {
		r := r
		eg.Go(func() error {
			raw, err := dialPeer(gctx, cfg.Peers[r], cfg.DialTimeout.Duration())
			if err != nil {
				return fmt.Errorf("dial rank %v: %w", r, err)
			}

			theirs, err := exchangeWelcome(raw, mine, hsTimeout)
			if err != nil {
				raw.Close()
				return err
			}
			if theirs.Rank != r {
				raw.Close()
				return fmt.Errorf("%w: dialed rank %v, got %v", ErrRankConflict, r, theirs.Rank)
			}

			mu.Lock()
			conns[r] = newConn(raw, myRank, r)
			mu.Unlock()

			logger.Debug("peer dialed", "rank", myRank, "peer", r)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		// 建组失败，回收已建立的连接
		mu.Lock()
		for _, c := range conns {
			if c != nil {
				c.Close()
			}
		}
		mu.Unlock()
		return nil, err
	}

	logger.Info("group established", "rank", myRank, "size", n)
	return newGroup(myRank, conns), nil
}

// dialPeer 带重试地拨号单个对端
//
// 对端的监听器可能尚未就绪，在 timeout 耗尽前按固定间隔重试。
func dialPeer(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	d := net.Dialer{Timeout: timeout}

	for {
		c, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return c, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if time.Now().After(deadline) {
			return nil, err
		}

		select {
		case <-time.After(dialRetryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
