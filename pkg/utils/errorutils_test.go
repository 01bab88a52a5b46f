package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/Nephrolytics-ai/radiosafe/pkg/logging"
	"github.com/stretchr/testify/suite"
)

type ErrorUtilsSuite struct {
	suite.Suite
}

func TestErrorUtilsSuite(t *testing.T) {
	suite.Run(t, new(ErrorUtilsSuite))
}

var errBase = errors.New("base failure")

func wrapFromHelper(err error) error {
	return WrapIfNotNil(err, "extra")
}

func (s *ErrorUtilsSuite) TestWrapIfNotNilNil() {
	s.NoError(WrapIfNotNil(nil))
}

func (s *ErrorUtilsSuite) TestWrapIfNotNilKeepsChain() {
	err := wrapFromHelper(errBase)
	s.Require().Error(err)
	s.ErrorIs(err, errBase)
	s.Contains(err.Error(), "utils.wrapFromHelper - extra: base failure")
}

func (s *ErrorUtilsSuite) TestContainsErrorSubstring() {
	err := WrapIfNotNil(WrapIfNotNil(errBase))
	s.True(ContainsErrorSubstring(err, "base failure"))
	s.False(ContainsErrorSubstring(err, "nope"))
	s.False(ContainsErrorSubstring(nil, "base"))
}

func (s *ErrorUtilsSuite) TestRecoverGoroutineSwallowsPanic() {
	log := logging.NewLogger(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer RecoverGoroutine("test", log)
		panic("boom")
	}()
	<-done
}
