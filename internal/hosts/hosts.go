// Package hosts serves static host records, letting the fetch dialer pin a
// catalog host to a mirror address.
package hosts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/xxxsen/cdrfetch/internal/resolver"
)

var ErrNotFound = errors.New("host not found in static records")

type record struct {
	ipv4 []net.IP
	ipv6 []net.IP
}

// Store holds static host records.
type Store struct {
	records map[string]*record
}

// New builds a Store from domain -> "ip[,ip...]" maps; later maps add to
// earlier ones.
func New(records ...map[string]string) (*Store, error) {
	m := make(map[string]*record, 32)
	st := &Store{records: m}
	for _, rec := range records {
		if err := st.mergeRecords(rec, m); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (s *Store) mergeRecords(m map[string]string, out map[string]*record) error {
	for domain, list := range m {
		domain = normalize(domain)
		if domain == "" {
			return fmt.Errorf("hosts: invalid domain in records")
		}
		res, ok := out[domain]
		if !ok {
			res = &record{}
			out[domain] = res
		}
		for token := range strings.SplitSeq(list, ",") {
			token = strings.TrimSpace(token)
			ip := net.ParseIP(token)
			if ip == nil {
				return fmt.Errorf("invalid ip in host, str:%s", token)
			}
			if ip4 := ip.To4(); ip4 != nil {
				res.ipv4 = append(res.ipv4, ip4)
				continue
			}
			res.ipv6 = append(res.ipv6, ip.To16())
		}
	}
	return nil
}

func (s *Store) String() string {
	return fmt.Sprintf("hosts(%d)", len(s.records))
}

func (s *Store) Len() int {
	return len(s.records)
}

// Resolve returns the IPv4 records of host followed by its IPv6 records.
func (s *Store) Resolve(ctx context.Context, host string) (*resolver.Answer, error) {
	entry, ok := s.records[normalize(host)]
	if !ok || len(entry.ipv4)+len(entry.ipv6) == 0 {
		return nil, fmt.Errorf("%w, host:%s", ErrNotFound, host)
	}
	ips := make([]net.IP, 0, len(entry.ipv4)+len(entry.ipv6))
	ips = append(ips, entry.ipv4...)
	ips = append(ips, entry.ipv6...)
	return &resolver.Answer{IPs: ips}, nil
}

// WithFallback resolves through the static records first and hands hosts
// they do not know to next.
func WithFallback(st *Store, next resolver.IHostResolver) resolver.IHostResolver {
	return &fallbackResolver{st: st, next: next}
}

type fallbackResolver struct {
	st   *Store
	next resolver.IHostResolver
}

func (f *fallbackResolver) String() string {
	return fmt.Sprintf("%s->%s", f.st.String(), f.next.String())
}

func (f *fallbackResolver) Resolve(ctx context.Context, host string) (*resolver.Answer, error) {
	ans, err := f.st.Resolve(ctx, host)
	if err == nil {
		return ans, nil
	}
	return f.next.Resolve(ctx, host)
}

// LoadRecordsFromFile reads lines of the form "domain ip [ip...]"; blank
// lines and lines starting with # are skipped.
func LoadRecordsFromFile(path string) (map[string]string, error) {
	rs := make(map[string]string, 32)
	path = strings.TrimSpace(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hosts: open file %s: %w", path, err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("hosts: invalid line in %s:%d", path, lineNum)
		}
		domain := normalize(fields[0])
		if domain == "" {
			return nil, fmt.Errorf("hosts: invalid domain in %s:%d", path, lineNum)
		}
		rs[domain] = strings.Join(fields[1:], ",")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("hosts: read file %s: %w", path, err)
	}
	return rs, nil
}

func LoadRecordsFromFiles(files []string) ([]map[string]string, error) {
	rs := make([]map[string]string, 0, len(files))
	for _, path := range files {
		item, err := LoadRecordsFromFile(path)
		if err != nil {
			return nil, err
		}
		rs = append(rs, item)
	}
	return rs, nil
}

func normalize(domain string) string {
	d := strings.TrimSpace(domain)
	d = strings.TrimSuffix(d, ".")
	return strings.ToLower(d)
}
