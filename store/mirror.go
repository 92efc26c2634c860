package store

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Mirror multiplexes between a remote sheaf server and a local store.
// Writes go to the local store, and reads check it first. Anything not
// local is fetched from the remote server. The local store then appears
// to hold everything the remote one does, but all changes stay local and
// nothing is ever written to the remote server.
//
// A read of a single file first copies the whole container from the
// remote host, which is wasteful when only one member is wanted. It is
// good enough for offline pack inspection, which is what it is for.
type Mirror struct {
	local  Store        // where writes land
	client *http.Client // reused for keep-alive connections
	host   string       // "http://hostname:port"
	token  string       // access token for the remote server
}

// NewMirror creates a Mirror store from the given local store and remote
// host. Host has the form "http://hostname:port". The optional token is
// sent with every request to the remote server.
func NewMirror(local Store, host, token string) *Mirror {
	return &Mirror{
		local:  local,
		host:   host,
		token:  token,
		client: &http.Client{Timeout: 300 * time.Second},
	}
}

// List returns a channel enumerating everything in this store. It
// combines the contents of the local and the remote stores.
func (c *Mirror) List() <-chan string {
	out := make(chan string)
	go mergechan(out, c.remoteList(), c.local.List())
	return out
}

// ListPrefix returns all keys with the given prefix from both stores.
func (c *Mirror) ListPrefix(prefix string) ([]string, error) {
	loc, err := c.local.ListPrefix(prefix)
	if err != nil {
		return loc, err
	}
	rmt, err := c.remoteListPrefix(prefix)
	if err != nil {
		return nil, err
	}
	return append(loc, rmt...), nil
}

// Open returns a container for reading. A container only on the remote
// side is first copied into the local store.
func (c *Mirror) Open(key string) (ReadAtCloser, int64, error) {
	rac, n, err := c.local.Open(key)
	if err == nil {
		return rac, n, err
	}
	rc, err := c.remoteOpen(key)
	if err != nil {
		return nil, 0, err
	}
	defer rc.Close()
	w, err := c.local.Create(key)
	if err != nil {
		return nil, 0, err
	}
	_, err = io.Copy(w, rc)
	w.Close()
	if err != nil {
		return nil, 0, err
	}
	return c.local.Open(key)
}

// Create makes a new container in the local store. A local container may
// share a name with a remote one, in which case it shadows the remote.
func (c *Mirror) Create(key string) (io.WriteCloser, error) {
	return c.local.Create(key)
}

// Delete removes a key from the local store only. Deleting a remote
// container is a nop, so a delete may not remove a key from view if a
// remote one remains behind it.
func (c *Mirror) Delete(key string) error {
	return c.local.Delete(key)
}

// merge in1 and in2 into c, dropping duplicates. Closes c when both
// inputs are closed.
func mergechan(c chan<- string, in1, in2 <-chan string) {
	seen := make(map[string]struct{})
	for in1 != nil || in2 != nil {
		var n string
		var ok bool
		select {
		case n, ok = <-in1:
			if !ok {
				in1 = nil
				continue
			}
		case n, ok = <-in2:
			if !ok {
				in2 = nil
				continue
			}
		}
		_, ok = seen[n]
		if !ok {
			seen[n] = struct{}{}
			c <- n
		}
	}
	close(c)
}

// The remote side is morally a ROStore, except Open returns an io.Reader
// rather than a ReadAtCloser, so it is private methods instead.

func (c *Mirror) remoteList() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		resp, err := c.get(c.host + "/bundle/list")
		if err != nil {
			log.Println(err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != 200 {
			log.Println("Mirror remoteList received", resp.StatusCode)
			return
		}
		// the list may be long, so parse it as a stream
		dec := json.NewDecoder(resp.Body)
		_, err = dec.Token() // opening bracket
		if err != nil {
			return
		}
		var s string
		for dec.More() {
			err = dec.Decode(&s)
			if err != nil {
				return
			}
			out <- s
		}
		dec.Token() // closing bracket
	}()
	return out
}

func (c *Mirror) remoteListPrefix(prefix string) ([]string, error) {
	resp, err := c.get(c.host + "/bundle/list/" + prefix)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("received status %d", resp.StatusCode)
	}
	var s []string
	dec := json.NewDecoder(resp.Body)
	err = dec.Decode(&s)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return s, nil
}

func (c *Mirror) remoteOpen(key string) (io.ReadCloser, error) {
	resp, err := c.get(c.host + "/bundle/open/" + key)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		resp.Body.Close()
		return nil, fmt.Errorf("received status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// get is like client.Get, but adds the token header if there is one.
func (c *Mirror) get(url string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Add("X-Api-Key", c.token)
	}
	return c.client.Do(req)
}
