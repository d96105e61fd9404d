// Package server wires the zone store, update engine and notify emitter
// together behind two dns.Server loops (UDP and TCP), exactly as
// main.go's pair of ActivateAndServe goroutines does, and implements the
// §4.7 dispatch table on top. The teacher's per-IP RateLimiter is kept
// and adapted: applied to inbound UDP queries only, since UPDATE and
// AXFR already serialize through updateMu / one-request-per-TCP-
// connection respectively.
package server

import (
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"authdns/internal/axfr"
	"authdns/internal/metrics"
	"authdns/internal/notify"
	"authdns/internal/query"
	"authdns/internal/update"
	"authdns/internal/wire"
	"authdns/internal/zone"

	"github.com/miekg/dns"
)

// visitor tracks a rate-limited source IP's token bucket.
type visitor struct {
	tokens   int
	lastSeen time.Time
}

// RateLimiter is a simple per-IP token bucket, grounded unchanged in
// shape on the teacher's internal/server/server.go RateLimiter.
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rps      int
	burst    int
	cleanup  time.Duration
}

// NewRateLimiter creates a rate limiter allowing rps requests/sec per IP
// with burst capacity burst, evicting idle visitors every cleanup
// interval.
func NewRateLimiter(rps, burst int, cleanup time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rps,
		burst:    burst,
		cleanup:  cleanup,
	}
	go rl.startCleanup()
	return rl
}

// Allow reports whether a request from ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.burst - 1, lastSeen: time.Now()}
		return true
	}

	elapsed := time.Since(v.lastSeen)
	if add := int(elapsed.Seconds() * float64(rl.rps)); add > 0 {
		v.tokens += add
		v.lastSeen = time.Now()
	}
	if v.tokens > rl.burst {
		v.tokens = rl.burst
	}
	if v.tokens > 0 {
		v.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.cleanup {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// Server aggregates the zone store, update engine, notify emitter, rate
// limiter and metrics sink that every request handler needs, and owns
// the UDP/TCP dns.Server loops. Everything is constructed once in
// cmd/authdnsd and passed by reference, replacing the teacher's
// module-level globals (§9 redesign note on global mutable state).
type Server struct {
	Store   *zone.Store
	Update  *update.Engine
	Notify  *notify.Emitter
	Metrics *metrics.Metrics
	Limiter *RateLimiter

	udp *dns.Server
	tcp *dns.Server
}

// New constructs a Server. udpAddr/tcpAddr are the listen addresses.
func New(store *zone.Store, eng *update.Engine, em *notify.Emitter, m *metrics.Metrics, limiter *RateLimiter, udpAddr, tcpAddr string) *Server {
	s := &Server{Store: store, Update: eng, Notify: em, Metrics: m, Limiter: limiter}
	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.serveDNS)
	s.udp = &dns.Server{Addr: udpAddr, Net: "udp", Handler: mux, UDPSize: 65535}
	s.tcp = &dns.Server{Addr: tcpAddr, Net: "tcp", Handler: mux}
	return s
}

// ListenAndServe starts the UDP and TCP loops and blocks until either
// returns (normally only on Shutdown or a bind failure).
func (s *Server) ListenAndServe() (udpErr, tcpErr error) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		udpErr = s.udp.ListenAndServe()
	}()
	go func() {
		defer wg.Done()
		tcpErr = s.tcp.ListenAndServe()
	}()
	wg.Wait()
	return udpErr, tcpErr
}

// Shutdown stops both listeners and, per §5's shutdown contract, frees
// every zone under the store's exclusive lock before returning.
func (s *Server) Shutdown() {
	_ = s.udp.Shutdown()
	_ = s.tcp.Shutdown()
	s.Store.Clear()
}

// serveDNS implements the §4.7 dispatch table: decode has already
// happened (dns.Server did it); classify by opcode, dispatch, suppress
// the second send when AXFR already streamed its own response.
func (s *Server) serveDNS(w dns.ResponseWriter, req *dns.Msg) {
	if req.Response {
		return // a response arriving at a server; drop per §4.7
	}
	if len(req.Question) > 0 {
		q := req.Question[0]
		log.Printf("query: %s %s %s from %s", dns.OpcodeToString[req.Opcode], q.Name, dns.TypeToString[q.Qtype], w.RemoteAddr())
	}
	s.Metrics.RecordQuery(opcodeName(req.Opcode))

	proto := "udp"
	if _, ok := w.RemoteAddr().(*net.TCPAddr); ok {
		proto = "tcp"
	}

	if proto == "udp" && req.Opcode == dns.OpcodeQuery {
		ip, _, _ := net.SplitHostPort(w.RemoteAddr().String())
		if s.Limiter != nil && !s.Limiter.Allow(ip) {
			reply := new(dns.Msg)
			reply.SetRcode(req, dns.RcodeRefused)
			s.sendReply(w, req, reply, proto)
			return
		}
	}

	switch req.Opcode {
	case dns.OpcodeQuery:
		resp, handled := query.Respond(s.Store, req, proto)
		if handled {
			z, ok := s.Store.Find(dns.Fqdn(strings.ToLower(req.Question[0].Name)), req.Question[0].Qclass)
			if !ok {
				return
			}
			if err := axfr.Serve(w, req, z); err != nil {
				s.Metrics.RecordAXFR("aborted")
			} else {
				s.Metrics.RecordAXFR("success")
			}
			return
		}
		s.Metrics.RecordResponse(dns.RcodeToString[resp.Rcode])
		s.sendReply(w, req, resp, proto)

	case dns.OpcodeUpdate:
		resp := s.Update.Handle(req)
		s.Metrics.RecordUpdate(strings.ToLower(dns.RcodeToString[resp.Rcode]))
		if resp.Rcode != dns.RcodeSuccess {
			log.Printf("update rejected: %v", update.Err(resp.Rcode))
		}
		s.sendReply(w, req, resp, proto)
		if s.Notify != nil && resp.Rcode == dns.RcodeSuccess && len(req.Question) == 1 {
			go s.Notify.NotifyZone(req.Question[0].Name, req.Question[0].Qclass)
			s.Metrics.RecordNotifySent()
		}

	case dns.OpcodeNotify:
		resp := new(dns.Msg)
		resp.SetReply(req)
		resp.Authoritative = true
		resp.Rcode = dns.RcodeSuccess
		s.sendReply(w, req, resp, proto)

	default:
		resp := new(dns.Msg)
		resp.SetReply(req)
		resp.Rcode = dns.RcodeNotImplemented
		s.sendReply(w, req, resp, proto)
	}
}

// sendReply applies this server's §4.1 wire policy — EDNS negotiation,
// then a size-limited encode on UDP — before handing resp to w. A UDP
// reply that would exceed its negotiated (or default 512-byte) limit is
// sent back truncated instead, per the BUFFER condition in §4.1's error
// taxonomy; AXFR responses never reach this path since axfr.Serve writes
// its own stream directly.
func (s *Server) sendReply(w dns.ResponseWriter, req, resp *dns.Msg, proto string) {
	wire.NegotiateEDNS(req, resp)

	if proto != "udp" {
		w.WriteMsg(resp)
		return
	}

	limit := 512 // RFC 1035 default UDP payload size, absent EDNS
	if opt := resp.IsEdns0(); opt != nil {
		limit = int(opt.UDPSize())
	}
	if buf, err := wire.SizeLimitedPack(resp, limit); err == nil {
		w.Write(buf)
		return
	}

	resp.Truncated = true
	resp.Answer, resp.Ns, resp.Extra = nil, nil, nil
	if opt := resp.IsEdns0(); opt != nil {
		resp.Extra = append(resp.Extra, opt)
	}
	w.WriteMsg(resp)
}

func opcodeName(op int) string {
	switch op {
	case dns.OpcodeQuery:
		return "QUERY"
	case dns.OpcodeUpdate:
		return "UPDATE"
	case dns.OpcodeNotify:
		return "NOTIFY"
	default:
		return "OTHER"
	}
}
