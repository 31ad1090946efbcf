package health

import (
	"context"
	"encoding/binary"
	"io"
	"io/fs"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/hftshm/pkg/shm"
)

type HealthTestSuite struct {
	suite.Suite
	p *shm.FilePolicy
}

func (s *HealthTestSuite) SetupTest() {
	s.p = shm.NewPortablePolicy(
		shm.WithBaseDir(filepath.Join(s.T().TempDir(), "hft")),
		shm.WithLogOutput(io.Discard),
	)
}

func (s *HealthTestSuite) create(name string) *shm.Buffer {
	c := shm.DefaultConfig()
	c.Name = name
	c.Policy = s.p
	c.BufferSize = 1 << 12
	b, err := shm.Create(context.Background(), c)
	s.Require().NoError(err)
	return b
}

func (s *HealthTestSuite) status(h http.Handler, path string) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func (s *HealthTestSuite) TestSegmentCheck() {
	check := SegmentCheck(s.p, "ring")
	s.ErrorIs(check(), fs.ErrNotExist)

	b := s.create("ring")
	defer b.Close()
	s.NoError(check())

	binary.LittleEndian.PutUint32(b.HeaderRegion()[0x20:], 7)
	s.ErrorIs(check(), ErrInvalidLayout)

	b.HeaderRegion()[0] = 0
	s.Error(check())
}

func (s *HealthTestSuite) TestProducerCheck() {
	b := s.create("ring")
	check := ProducerCheck(b)
	s.NoError(check(), "no producer attached")

	b.Header().SetProducerPID(uint32(os.Getpid()))
	s.NoError(check())

	b.Header().SetProducerPID(math.MaxInt32 - 1)
	s.ErrorIs(check(), ErrProducerGone)

	s.Require().NoError(b.Close())
	s.ErrorIs(check(), shm.ErrClosed)
}

func (s *HealthTestSuite) TestProducerCheckDuringClose() {
	for i := 0; i < 20; i++ {
		b := s.create("ring")
		b.Header().SetProducerPID(uint32(os.Getpid()))
		check := ProducerCheck(b)

		r := shm.NewRegistry()
		r.Add(b)
		done := make(chan error)
		go func() {
			for {
				if err := check(); err != nil {
					done <- err
					return
				}
			}
		}()
		s.Require().NoError(r.CloseAll())
		s.ErrorIs(<-done, shm.ErrClosed)
	}
}

func (s *HealthTestSuite) TestBaseDirCheck() {
	check := BaseDirCheck(s.p)
	s.Error(check())
	s.Require().NoError(os.MkdirAll(s.p.BaseDir(), 0o755))
	s.NoError(check())
}

func (s *HealthTestSuite) TestHandler() {
	h := NewHandler(s.p, "ring")
	s.Equal(http.StatusServiceUnavailable, s.status(h, "/live"))
	s.Equal(http.StatusServiceUnavailable, s.status(h, "/ready"))

	b := s.create("ring")
	defer b.Close()
	s.Equal(http.StatusOK, s.status(h, "/live"))
	s.Equal(http.StatusOK, s.status(h, "/ready"))

	r := shm.NewRegistry()
	r.Add(b)
	AddRegistry(h, r)
	s.Equal(http.StatusOK, s.status(h, "/live"))

	b.Header().SetProducerPID(math.MaxInt32 - 1)
	s.Equal(http.StatusServiceUnavailable, s.status(h, "/live"))
	// readiness includes liveness checks
	s.Equal(http.StatusServiceUnavailable, s.status(h, "/ready"))
}

func TestHealthSuite(t *testing.T) {
	suite.Run(t, new(HealthTestSuite))
}
