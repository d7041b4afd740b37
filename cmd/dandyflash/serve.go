package main

import (
	"context"
	"io/ioutil"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/thesues/dandy-go/blockdev"
	"github.com/thesues/dandy-go/internalerror"
	"github.com/thesues/dandy-go/metrics"
	"github.com/urfave/cli"
)

const requestTimeout = 30 * time.Second

var TimeoutError = errors.New("process timeout")

//all device access goes through one worker goroutine, requests carry their
//own result channel

type InfoRequest struct {
	resultChan chan deviceInfo
}

type RegionsRequest struct {
	resultChan chan []regionInfo
}

type ReadRequest struct {
	ctx        context.Context
	addr       uint64
	size       uint64
	resultChan chan ReadResult
}

type ReadResult struct {
	data []byte
	err  error
}

type ReplaceRequest struct {
	ctx        context.Context
	addr       uint64
	data       []byte
	resultChan chan error
}

type EraseRequest struct {
	ctx        context.Context
	addr       uint64
	size       uint64
	resultChan chan error
}

func handleReadRequest(s *session, request ReadRequest) {
	select {
	case <-request.ctx.Done():
		request.resultChan <- ReadResult{err: TimeoutError}
		return
	default:
	}

	var response ReadResult
	loc, err := s.locate(request.addr, request.size)
	if err == nil && request.size == 0 {
		err = errors.Wrap(internalerror.InvalidInput, "read size is zero")
	}
	if err == nil {
		response.data = make([]byte, request.size)
		err = loc.Device.Read(response.data, loc.Physical)
	}
	if err != nil {
		response = ReadResult{err: err}
	}

	select {
	case <-request.ctx.Done():
		request.resultChan <- ReadResult{err: TimeoutError}
	case request.resultChan <- response:
	}
}

func handleReplaceRequest(s *session, request ReplaceRequest) {
	select {
	case <-request.ctx.Done():
		request.resultChan <- TimeoutError
		return
	default:
	}

	loc, err := s.locate(request.addr, uint64(len(request.data)))
	if err == nil {
		err = blockdev.Replace(loc.Device, request.data, loc.Physical)
	}
	request.resultChan <- err
}

func handleEraseRequest(s *session, request EraseRequest) {
	select {
	case <-request.ctx.Done():
		request.resultChan <- TimeoutError
		return
	default:
	}

	loc, err := s.locate(request.addr, request.size)
	if err == nil {
		if !blockdev.IsValidErase(loc.Device, loc.Physical, request.size) {
			err = errors.Wrapf(internalerror.InvalidInput, "erase %#x+%d is not aligned", request.addr, request.size)
		} else {
			err = loc.Device.Erase(loc.Physical, request.size)
		}
	}
	request.resultChan <- err
}

//serveRequests runs until done is closed
func serveRequests(s *session, requests chan interface{}, done chan struct{}) {
	for {
		select {
		case request := <-requests:
			switch r := request.(type) {
			case InfoRequest:
				r.resultChan <- s.info()
			case RegionsRequest:
				r.resultChan <- s.regions()
			case ReadRequest:
				handleReadRequest(s, r)
			case ReplaceRequest:
				handleReplaceRequest(s, r)
			case EraseRequest:
				handleEraseRequest(s, r)
			default:
				logrus.Warnf("unknown request %T", request)
			}
		case <-done:
			return
		}
	}
}

func httpStatus(err error) int {
	switch {
	case err == TimeoutError, internalerror.Is(err, internalerror.DeviceTimeout):
		return http.StatusGatewayTimeout
	case internalerror.Is(err, internalerror.OutOfRange):
		return http.StatusRequestedRangeNotSatisfiable
	case internalerror.Is(err, internalerror.InvalidInput):
		return http.StatusBadRequest
	case internalerror.Is(err, internalerror.AccessDenied):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func replyError(c *gin.Context, err error) {
	logrus.Warnf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(httpStatus(err), gin.H{"error": err.Error(), "errno": internalerror.Errno(err)})
}

func paramNumber(c *gin.Context, name string) (uint64, bool) {
	n, err := parseNumber(c.Param(name))
	if err != nil {
		replyError(c, err)
		return 0, false
	}
	return n, true
}

func newRouter(requests chan interface{}, staticDir string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if staticDir != "" {
		r.Use(static.Serve("/static", static.LocalFile(staticDir, false)))
	}

	r.GET("/metrics", gin.WrapH(metrics.PrometheusHandler))

	r.GET("/info", func(c *gin.Context) {
		resultChan := make(chan deviceInfo)
		requests <- InfoRequest{resultChan: resultChan}
		c.JSON(http.StatusOK, <-resultChan)
	})

	r.GET("/regions", func(c *gin.Context) {
		resultChan := make(chan []regionInfo)
		requests <- RegionsRequest{resultChan: resultChan}
		c.JSON(http.StatusOK, <-resultChan)
	})

	r.GET("/flash/:addr/:size", func(c *gin.Context) {
		addr, ok := paramNumber(c, "addr")
		if !ok {
			return
		}
		size, ok := paramNumber(c, "size")
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		request := ReadRequest{
			ctx:        ctx,
			addr:       addr,
			size:       size,
			resultChan: make(chan ReadResult, 1),
		}
		requests <- request

		select {
		case out := <-request.resultChan:
			if out.err != nil {
				replyError(c, out.err)
				return
			}
			c.Data(http.StatusOK, "application/octet-stream", out.data)
		case <-ctx.Done():
			replyError(c, TimeoutError)
		}
	})

	r.PUT("/flash/:addr", func(c *gin.Context) {
		addr, ok := paramNumber(c, "addr")
		if !ok {
			return
		}
		data, err := ioutil.ReadAll(c.Request.Body)
		if err != nil {
			replyError(c, err)
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		request := ReplaceRequest{
			ctx:        ctx,
			addr:       addr,
			data:       data,
			resultChan: make(chan error, 1),
		}
		requests <- request

		select {
		case err = <-request.resultChan:
			if err != nil {
				replyError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"addr": addr, "size": len(data)})
		case <-ctx.Done():
			replyError(c, TimeoutError)
		}
	})

	r.DELETE("/flash/:addr/:size", func(c *gin.Context) {
		addr, ok := paramNumber(c, "addr")
		if !ok {
			return
		}
		size, ok := paramNumber(c, "size")
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		request := EraseRequest{
			ctx:        ctx,
			addr:       addr,
			size:       size,
			resultChan: make(chan error, 1),
		}
		requests <- request

		select {
		case err := <-request.resultChan:
			if err != nil {
				replyError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"addr": addr, "size": size})
		case <-ctx.Done():
			replyError(c, TimeoutError)
		}
	})

	return r
}

func serveDevice(c *cli.Context, s *session) error {
	listen := c.String("listen")
	requests := make(chan interface{}, 10)
	done := make(chan struct{})
	defer close(done)
	go serveRequests(s, requests, done)

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	srv := &http.Server{Addr: listen, Handler: newRouter(requests, c.String("static"))}
	go func() {
		sig := <-sc
		logrus.Infof("got signal [%v], shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	logrus.Infof("start http server on %s", listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
