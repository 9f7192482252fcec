package transport

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/illarion/cipherstore/internal/account"
	"github.com/illarion/cipherstore/internal/crypto"
)

const (
	HeaderPublicKey = "X-Cipherstore-Key"
	HeaderSignature = "X-Cipherstore-Signature"
	HeaderTimestamp = "X-Cipherstore-Timestamp"
	HeaderRequestID = "X-Request-ID"
)

// MaxClockSkew bounds how far a request timestamp may be from server time
const MaxClockSkew = 2 * time.Minute

var ErrUnauthenticated = errors.New("unauthenticated")

// signingPayload is what a caller signs: method, path, timestamp and the
// exact body
func signingPayload(method, path, stamp string, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(stamp)
	b.WriteByte('\n')
	b.Write(body)
	return b.Bytes()
}

var lastStamp atomic.Int64

// nextStamp returns the current time in nanoseconds, strictly increasing
// across calls in this process
func nextStamp() int64 {
	now := time.Now().UnixNano()
	for {
		prev := lastStamp.Load()
		next := max(now, prev+1)
		if lastStamp.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// Sign attaches the identity's public key, a fresh timestamp and the
// signature over both to req
func Sign(req *http.Request, id *crypto.Identity, body []byte) {
	stamp := strconv.FormatInt(nextStamp(), 10)
	sig := id.Sign(signingPayload(req.Method, req.URL.Path, stamp, body))
	req.Header.Set(HeaderPublicKey, hex.EncodeToString(id.PublicKey()))
	req.Header.Set(HeaderTimestamp, stamp)
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))
}

// authenticate verifies the request signature and freshness and returns
// the caller with the signed timestamp
func authenticate(r *http.Request, body []byte, now time.Time) (account.Address, int64, error) {
	pubHex := r.Header.Get(HeaderPublicKey)
	sigHex := r.Header.Get(HeaderSignature)
	stampText := r.Header.Get(HeaderTimestamp)
	if pubHex == "" || sigHex == "" || stampText == "" {
		return account.Address{}, 0, fmt.Errorf("%w: missing %s, %s or %s", ErrUnauthenticated, HeaderPublicKey, HeaderSignature, HeaderTimestamp)
	}

	stamp, err := strconv.ParseInt(stampText, 10, 64)
	if err != nil {
		return account.Address{}, 0, fmt.Errorf("%w: timestamp: %v", ErrUnauthenticated, err)
	}
	skew := now.Sub(time.Unix(0, stamp))
	if skew > MaxClockSkew || skew < -MaxClockSkew {
		return account.Address{}, 0, fmt.Errorf("%w: timestamp outside the %s window", ErrUnauthenticated, MaxClockSkew)
	}

	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return account.Address{}, 0, fmt.Errorf("%w: public key: %v", ErrUnauthenticated, err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return account.Address{}, 0, fmt.Errorf("%w: signature: %v", ErrUnauthenticated, err)
	}

	caller, err := crypto.Verify(ed25519.PublicKey(pub), signingPayload(r.Method, r.URL.Path, stampText, body), sig)
	if err != nil {
		return account.Address{}, 0, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return caller, stamp, nil
}

// replayGuard remembers the newest accepted timestamp per caller. A signed
// request is accepted once, and only if it is newer than everything the
// caller had accepted before.
type replayGuard struct {
	mu   sync.Mutex
	last map[account.Address]int64
}

const pruneThreshold = 4096

func newReplayGuard() *replayGuard {
	return &replayGuard{last: make(map[account.Address]int64)}
}

func (g *replayGuard) accept(caller account.Address, stamp int64, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if stamp <= g.last[caller] {
		return fmt.Errorf("%w: replayed or reordered request", ErrUnauthenticated)
	}
	g.last[caller] = stamp

	// Entries older than the skew window can go: any stamp they would
	// reject is already rejected as stale
	if len(g.last) > pruneThreshold {
		horizon := now.Add(-MaxClockSkew).UnixNano()
		for addr, seen := range g.last {
			if seen < horizon {
				delete(g.last, addr)
			}
		}
	}
	return nil
}
