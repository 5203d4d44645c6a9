// Package oxidbtest runs an in-memory oxidb frame server for tests.
package oxidbtest

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"reflect"
	"sort"
	"sync"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/oxidb"
)

type object struct {
	data        []byte
	contentType string
	metadata    map[string]any
}

// Server answers the subset of oxidb commands used by this module. Queries
// match on field equality only.
type Server struct {
	mu          sync.Mutex
	collections map[string][]map[string]any
	unique      map[string][]string
	buckets     map[string]map[string]object
	nextID      float64
	failures    map[string]string
	calls       map[string]int
	client      *oxidb.Client
}

// New starts a server and connects a client to it through net.Pipe.
// The pipe is closed when the test ends.
func New(t interface {
	Cleanup(func())
}) *Server {
	s := &Server{
		collections: map[string][]map[string]any{},
		unique:      map[string][]string{},
		buckets:     map[string]map[string]object{},
		failures:    map[string]string{},
		calls:       map[string]int{},
	}
	clientConn, serverConn := net.Pipe()
	go s.serve(serverConn)
	s.client = oxidb.NewClient(clientConn)
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})
	return s
}

// Get returns the client connected to this server.
func (s *Server) Get() *oxidb.Client { return s.client }

// FailNext makes the next request for cmd return msg as a server error.
func (s *Server) FailNext(cmd, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[cmd] = msg
}

// Calls returns how many times cmd was received.
func (s *Server) Calls(cmd string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[cmd]
}

// Docs returns a copy of every document in collection.
func (s *Server) Docs(collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.collections[collection]))
	copy(out, s.collections[collection])
	return out
}

// Object returns a stored blob and whether it exists.
func (s *Server) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.buckets[bucket][key]
	return o.data, ok
}

func (s *Server) serve(conn net.Conn) {
	for {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return
		}
		payload := make([]byte, binary.LittleEndian.Uint32(lenBuf))
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		var req map[string]any
		resp := map[string]any{"ok": true}
		if err := json.Unmarshal(payload, &req); err != nil {
			resp = map[string]any{"ok": false, "error": err.Error()}
		} else if data, err := s.handle(req); err != nil {
			resp = map[string]any{"ok": false, "error": err.Error()}
		} else {
			resp["data"] = data
		}
		out, _ := json.Marshal(resp)
		frame := make([]byte, 4+len(out))
		binary.LittleEndian.PutUint32(frame, uint32(len(out)))
		copy(frame[4:], out)
		if _, err := conn.Write(frame); err != nil {
			return
		}
	}
}

func (s *Server) handle(req map[string]any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, _ := req["cmd"].(string)
	s.calls[cmd]++
	if msg, ok := s.failures[cmd]; ok {
		delete(s.failures, cmd)
		return nil, fmt.Errorf("%s", msg)
	}
	coll, _ := req["collection"].(string)
	query, _ := req["query"].(map[string]any)

	switch cmd {
	case "ping":
		return "pong", nil
	case "create_index", "create_bucket":
		if b, ok := req["bucket"].(string); ok && s.buckets[b] == nil {
			s.buckets[b] = map[string]object{}
		}
		return "ok", nil
	case "create_unique_index":
		field, _ := req["field"].(string)
		s.unique[coll] = append(s.unique[coll], field)
		return "ok", nil
	case "insert":
		doc, _ := req["doc"].(map[string]any)
		for _, field := range s.unique[coll] {
			for _, existing := range s.collections[coll] {
				if v, ok := doc[field]; ok && reflect.DeepEqual(existing[field], v) {
					return nil, fmt.Errorf("unique index violation on field %q", field)
				}
			}
		}
		s.nextID++
		doc["_id"] = s.nextID
		s.collections[coll] = append(s.collections[coll], doc)
		return map[string]any{"id": s.nextID}, nil
	case "find":
		found := s.match(coll, query)
		if srt, ok := req["sort"].(map[string]any); ok {
			for field, dir := range srt {
				desc, _ := dir.(float64)
				sort.SliceStable(found, func(i, j int) bool {
					a, b := fmt.Sprint(found[i][field]), fmt.Sprint(found[j][field])
					if desc < 0 {
						return a > b
					}
					return a < b
				})
			}
		}
		if limit, ok := req["limit"].(float64); ok && int(limit) < len(found) {
			found = found[:int(limit)]
		}
		return found, nil
	case "find_one":
		found := s.match(coll, query)
		if len(found) == 0 {
			return nil, nil
		}
		return found[0], nil
	case "count":
		return map[string]any{"count": float64(len(s.match(coll, query)))}, nil
	case "update_one":
		update, _ := req["update"].(map[string]any)
		set, _ := update["$set"].(map[string]any)
		for _, doc := range s.collections[coll] {
			if matches(doc, query) {
				for k, v := range set {
					doc[k] = v
				}
				return map[string]any{"modified": 1.0}, nil
			}
		}
		return map[string]any{"modified": 0.0}, nil
	case "put_object":
		bucket, _ := req["bucket"].(string)
		key, _ := req["key"].(string)
		encoded, _ := req["data"].(string)
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, err
		}
		if s.buckets[bucket] == nil {
			return nil, fmt.Errorf("bucket %q not found", bucket)
		}
		ct, _ := req["content_type"].(string)
		meta, _ := req["metadata"].(map[string]any)
		s.buckets[bucket][key] = object{data: data, contentType: ct, metadata: meta}
		return map[string]any{"key": key, "size": float64(len(data))}, nil
	case "get_object", "head_object":
		bucket, _ := req["bucket"].(string)
		key, _ := req["key"].(string)
		o, ok := s.buckets[bucket][key]
		if !ok {
			return nil, fmt.Errorf("object %q not found", key)
		}
		out := map[string]any{"key": key, "content_type": o.contentType, "size": float64(len(o.data)), "metadata": o.metadata}
		if cmd == "get_object" {
			out["content"] = base64.StdEncoding.EncodeToString(o.data)
		}
		return out, nil
	case "delete_object":
		bucket, _ := req["bucket"].(string)
		key, _ := req["key"].(string)
		delete(s.buckets[bucket], key)
		return "ok", nil
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

func (s *Server) match(coll string, query map[string]any) []map[string]any {
	var out []map[string]any
	for _, doc := range s.collections[coll] {
		if matches(doc, query) {
			cp := make(map[string]any, len(doc))
			for k, v := range doc {
				cp[k] = v
			}
			out = append(out, cp)
		}
	}
	return out
}

func matches(doc, query map[string]any) bool {
	for k, v := range query {
		if !reflect.DeepEqual(doc[k], v) {
			return false
		}
	}
	return true
}
