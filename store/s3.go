package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	raven "github.com/getsentry/raven-go"
)

// An S3 store keeps pack containers in AWS S3 (or anything speaking its
// API, such as Minio). Do not change Bucket or Prefix concurrently with
// calls using the structure.
type S3 struct {
	svc    *s3.S3
	Bucket string
	Prefix string
	stats  *statcache // remembers HEAD results
}

// NewS3 creates an S3 store using the given bucket, prepending prefix to
// every key. The prefix lets one bucket hold more than one store: with
// prefix "packs/" an Open("hello") fetches the key "packs/hello". The
// credentials in the session are used for all accesses.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	return &S3{
		Bucket: bucket,
		Prefix: prefix,
		svc:    s3.New(awsSession),
		stats:  newStatCache(),
	}
}

// List returns a channel for every key in this store. Only keys under
// the store's Prefix are returned, so a bucket shared with other data is
// fine.
func (s *S3) List() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(s.Bucket),
			Prefix: aws.String(s.Prefix),
		}
		err := s.svc.ListObjectsV2Pages(input,
			func(page *s3.ListObjectsV2Output, lastpage bool) bool {
				for _, obj := range page.Contents {
					out <- strings.TrimPrefix(*obj.Key, s.Prefix)
				}
				return !lastpage
			})
		if err != nil {
			log.Println("S3 List:", s.Prefix, err)
			raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix})
		}
	}()
	return out
}

// ListPrefix returns the keys in this store having the given prefix.
// The argument is added to the store's own Prefix.
func (s *S3) ListPrefix(prefix string) ([]string, error) {
	var result []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix + prefix),
	}
	err := s.svc.ListObjectsV2Pages(input,
		func(page *s3.ListObjectsV2Output, lastpage bool) bool {
			for _, obj := range page.Contents {
				result = append(result, strings.TrimPrefix(*obj.Key, s.Prefix))
			}
			return !lastpage
		})
	if err != nil {
		log.Println("S3 ListPrefix:", s.Prefix, prefix, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Pattern": prefix})
	}
	return result, err
}

// Open returns a ReadAtCloser for the content of the given key. Data is
// paged in from S3 as needed, with a handful of chunks cached in memory.
func (s *S3) Open(key string) (ReadAtCloser, int64, error) {
	size, err := s.stat(key)
	if err != nil {
		return nil, 0, err
	}
	result := &s3Reader{
		svc:    s.svc,
		bucket: s.Bucket,
		key:    s.Prefix + key,
		size:   size,
	}
	return result, size, nil
}

// Create returns a WriteCloser uploading content to the given key. Data
// is batched and sent with the multipart interface. Part sizes grow, so
// containers up to the 5 TB S3 object limit are theoretically possible.
func (s *S3) Create(key string) (io.WriteCloser, error) {
	_, err := s.stat(key)
	if err == nil {
		return nil, ErrKeyExists
	}
	s.stats.Set(key, 0) // reset in case this key was previously deleted
	return &s3Writer{
		svc:    s.svc,
		bucket: s.Bucket,
		key:    s.Prefix + key,
	}, nil
}

// Delete removes the given key from the store. The store's Prefix is
// prepended first. Deleting something not present is not an error.
func (s *S3) Delete(key string) error {
	_, err := s.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		log.Println("S3 Delete:", s.Prefix, key, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
	} else {
		s.stats.Set(key, sizeDeleted)
	}
	return err
}

// stat returns the size of a key if it exists, checking the cache before
// doing a HEAD request. The cache cuts the request count enormously
// since the resolver stats containers over and over.
func (s *S3) stat(key string) (int64, error) {
	return s.stats.Get(key, s.stat0)
}

// stat0 does the actual HEAD request. Call stat() instead.
func (s *S3) stat0(key string) (int64, error) {
	info, err := s.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		return 0, err
	}
	return *info.ContentLength, nil
}

// s3Reader adapts S3 range requests to the ReaderAt interface. It keeps
// a small most-recently-used list of downloaded chunks. Chunks start at
// multiples of the chunk size, so cached chunks never overlap.
//
// It is not safe to use from more than one goroutine.
type s3Reader struct {
	svc    *s3.S3
	bucket string
	key    string
	chunks []s3Chunk // cache of downloaded data, most recent first
	size   int64
}

type s3Chunk struct {
	data   []byte
	offset int64
}

// ReadAt implements io.ReaderAt.
func (r *s3Reader) ReadAt(p []byte, offset int64) (int, error) {
	var err error
	start := offset
	for len(p) > 0 && offset < r.size {
		var c s3Chunk
		c, err = r.chunk(offset)
		if err != nil {
			// don't return yet, data may have been copied in a
			// previous pass
			break
		}
		n := copy(p, c.data[offset-c.offset:])
		p = p[n:]
		offset += int64(n)
	}
	// If data was copied, swallow an EOF. If nothing was copied and there
	// is no error, the read began past the end.
	if err == io.EOF && offset != start {
		err = nil
	} else if err == nil && offset == start && len(p) > 0 {
		err = io.EOF
	}
	return int(offset - start), err
}

// number of chunks cached per reader before reuse of the oldest slot
const s3NumChunks = 5

// chunk returns the cached chunk holding offset, downloading it if needed.
func (r *s3Reader) chunk(offset int64) (s3Chunk, error) {
	i := r.findchunk(offset)
	if i == -1 {
		c, err := r.loadchunk(offset)
		if err != nil {
			return s3Chunk{}, err
		}
		// grow the cache if it is short, otherwise take the last slot
		if len(r.chunks) < s3NumChunks {
			r.chunks = append(r.chunks, c)
		}
		i = len(r.chunks) - 1
		r.chunks[i] = c
	}
	c := r.chunks[i]
	if i > 0 {
		// move to the front
		copy(r.chunks[1:], r.chunks[:i])
		r.chunks[0] = c
	}
	return c, nil
}

// findchunk returns the index of the cached chunk containing the byte at
// offset, or -1.
func (r *s3Reader) findchunk(offset int64) int {
	for i, c := range r.chunks {
		base := c.offset
		limit := base + int64(len(c.data))
		if base <= offset && offset < limit {
			return i
		}
	}
	return -1
}

const s3ChunkSize = 10 * 1024 * 1024 // 10 MiB

// loadchunk downloads the chunk containing offset. Short chunks are
// possible at the end of the object.
func (r *s3Reader) loadchunk(offset int64) (s3Chunk, error) {
	startpos := (offset / s3ChunkSize) * s3ChunkSize
	endpos := startpos + s3ChunkSize
	input := &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", startpos, endpos-1)),
	}
	output, err := r.svc.GetObject(input)
	if err != nil {
		log.Println("S3 loadchunk:", r.key, offset, err)
		// an invalid range error means we went past the end
		e, ok := err.(awserr.RequestFailure)
		if ok && e.StatusCode() == http.StatusRequestedRangeNotSatisfiable {
			err = io.EOF
		}
		return s3Chunk{}, err
	}
	var data bytes.Buffer
	n, err := io.Copy(&data, output.Body)
	output.Body.Close()
	if n == 0 && err == nil {
		// nothing transferred and no error...?
		err = io.EOF
	}
	return s3Chunk{data: data.Bytes(), offset: startpos}, err
}

// Close this reader.
func (r *s3Reader) Close() error {
	return nil
}

// s3Writer uploads an object to S3. If everything fits into one buffer a
// single PUT is used. Otherwise the multipart interface takes over.
//
// The final size of a container is unknown while writing it, so the part
// size grows as parts are uploaded. Small containers then use small
// parts, while large ones stay under the AWS limit of 10,000 parts. The
// threshold for part i is min(64 MiB * 2^i, 4 GiB).
type s3Writer struct {
	svc      *s3.S3
	bucket   string
	key      string
	buf      *bytes.Buffer // buffer being filled
	multi    bool          // true once a multipart upload is started
	uploadID string        // id the multipart upload was assigned
	part     int           // part currently being filled (0-based, AWS is 1-based)
	etags    []string      // etag for each uploaded part
	abort    bool          // true to abandon the upload at Close
}

// These are constants, but beware! The code below assumes
// partBaseSize << 6 == partMaxSize.
const (
	partBaseSize = 64 * 1024 * 1024
	partMaxSize  = 4 * 1024 * 1024 * 1024
)

var (
	// spare upload buffers, shared between all s3Writer instances
	partBufferPool sync.Pool

	// ErrNoETag means AWS did not return an ETag for an uploaded part.
	ErrNoETag = errors.New("No ETag was returned from AWS")
)

func (wc *s3Writer) Write(p []byte) (int, error) {
	if wc.buf == nil {
		wc.buf = wc.getbuf()
	}
	n, err := wc.buf.Write(p)
	if n == 0 && err != nil {
		wc.abort = true
		return n, err
	}
	limit := partMaxSize
	if wc.part < 6 {
		limit = partBaseSize << wc.part
	}
	if wc.buf.Len() > limit {
		err = wc.uploadpart(wc.part, wc.buf)
		wc.buf.Reset()
		if err != nil {
			wc.abort = true
			return 0, err
		}
		wc.part++
	}
	return n, nil
}

// Close flushes anything buffered and finishes the upload. If there were
// any errors, now or during Write, the whole upload is abandoned and
// nothing is saved to S3.
func (wc *s3Writer) Close() error {
	if wc.buf != nil {
		defer func() {
			partBufferPool.Put(wc.buf)
			wc.buf = nil
		}()
	}

	// without a multipart transaction, send the buffer in one piece
	if !wc.multi {
		if wc.abort {
			return nil
		}
		return wc.uploadfull(wc.buf)
	}

	var err error
	if !wc.abort && wc.buf.Len() > 0 {
		err = wc.uploadpart(wc.part, wc.buf)
		if err != nil {
			wc.abort = true
		}
	}
	if wc.abort {
		_, err2 := wc.svc.AbortMultipartUpload(&s3.AbortMultipartUploadInput{
			Bucket:   aws.String(wc.bucket),
			Key:      aws.String(wc.key),
			UploadId: aws.String(wc.uploadID),
		})
		if err2 != nil {
			log.Println("S3 Abort Close:", wc.key, err2)
		}
		if err == nil {
			err = err2
		}
		return err
	}
	err = wc.finishMultipart()
	if err != nil {
		log.Println("S3 Complete Close:", wc.key, err)
	}
	return err
}

func (wc *s3Writer) getbuf() *bytes.Buffer {
	b, ok := partBufferPool.Get().(*bytes.Buffer)
	if !ok {
		b = &bytes.Buffer{}
		b.Grow(2 * partBaseSize) // guess a starting capacity
	}
	b.Reset()
	return b
}

func (wc *s3Writer) startMultipart() error {
	if wc.multi {
		return nil
	}
	result, err := wc.svc.CreateMultipartUpload(&s3.CreateMultipartUploadInput{
		Bucket: aws.String(wc.bucket),
		Key:    aws.String(wc.key),
	})
	if err != nil {
		log.Println("S3 startMultipart:", wc.key, err)
		raven.CaptureError(err, map[string]string{"Bucket": wc.bucket, "Key": wc.key})
		return err
	}
	wc.multi = true
	wc.uploadID = *result.UploadId
	return nil
}

func (wc *s3Writer) finishMultipart() error {
	var completed []*s3.CompletedPart
	for i, etag := range wc.etags {
		completed = append(completed, &s3.CompletedPart{
			ETag:       aws.String(etag),
			PartNumber: aws.Int64(int64(i + 1)), // parts are 1-based
		})
	}
	_, err := wc.svc.CompleteMultipartUpload(
		&s3.CompleteMultipartUploadInput{
			Bucket:   aws.String(wc.bucket),
			Key:      aws.String(wc.key),
			UploadId: aws.String(wc.uploadID),
			MultipartUpload: &s3.CompletedMultipartUpload{
				Parts: completed,
			},
		})
	return err
}

func (wc *s3Writer) uploadpart(partno int, buf *bytes.Buffer) error {
	if !wc.multi {
		err := wc.startMultipart()
		if err != nil {
			return err
		}
	}
	input := &s3.UploadPartInput{
		Body:       bytes.NewReader(buf.Bytes()), // UploadPart needs Seek
		Bucket:     aws.String(wc.bucket),
		Key:        aws.String(wc.key),
		PartNumber: aws.Int64(int64(partno + 1)),
		UploadId:   aws.String(wc.uploadID),
	}
	output, err := wc.svc.UploadPart(input)
	if err != nil {
		log.Println("S3 uploadpart:", wc.key, partno+1, err)
		return err
	}
	if output.ETag == nil {
		log.Println("S3 nil ETag for part", partno, "key=", wc.key)
		return ErrNoETag
	}
	wc.etags = append(wc.etags, *output.ETag)
	return nil
}

func (wc *s3Writer) uploadfull(buf *bytes.Buffer) error {
	// buf can be nil when Close is called without any Writes
	source := &bytes.Reader{} // PutObject needs Seek, bytes.Buffer lacks it
	if buf != nil {
		source.Reset(buf.Bytes())
	}
	input := &s3.PutObjectInput{
		Body:          source,
		Bucket:        aws.String(wc.bucket),
		Key:           aws.String(wc.key),
		ContentLength: aws.Int64(int64(source.Len())),
	}
	_, err := wc.svc.PutObject(input)
	if err != nil {
		log.Println("S3 uploadfull:", wc.key, err)
	}
	return err
}
