// Package backend is a file pinning service built on the agent: users buy
// upload quota with on-chain payments and pin files to IPFS.
package backend

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/layer-3/agent"
	"github.com/layer-3/agent/core"
	"github.com/layer-3/agent/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultPricePerFile is what one extra upload costs
var DefaultPricePerFile = decimal.NewFromInt(2)

// Store is the record storage the methods need
type Store interface {
	EnsureUser(ctx context.Context, address string) (*User, error)
	User(ctx context.Context, address string) (*User, error)
	Files(ctx context.Context, address string) ([]File, error)
	CreateQuote(ctx context.Context, address string, files int, price decimal.Decimal) (*Quote, error)
	Quote(ctx context.Context, id string) (*Quote, error)
	SettleQuote(ctx context.Context, address, quoteID, hash string) error
	ReserveFile(ctx context.Context, address string) error
	ReleaseFile(ctx context.Context, address string)
	AddFile(ctx context.Context, address, name string, size int64, cid string) (*File, error)
}

// Service implements the backend methods
type Service struct {
	store        Store
	pinner       Pinner
	pricePerFile decimal.Decimal
}

// NewService creates the backend over store and pinner
func NewService(store Store, pinner Pinner) *Service {
	return &Service{store: store, pinner: pinner, pricePerFile: DefaultPricePerFile}
}

// OnAfterAuth creates the user record on first sign-in
func (s *Service) OnAfterAuth(ctx context.Context, user core.User) error {
	_, err := s.store.EnsureUser(ctx, user.WalletAddress)
	return err
}

// Register adds the backend methods to the agent
func (s *Service) Register(a *agent.Agent) error {
	get := rpc.Options{Method: http.MethodGet, AuthRequired: true}
	post := rpc.Options{AuthRequired: true}

	regs := []error{
		agent.Method(a, "/check-session", with(get, "Return the user session", "Return a message when error occurs on check session"), s.checkSession),
		agent.Method(a, "/get-files", with(get, "Get the files info", "Return a message when error occurs on get files"), s.getFiles),
		agent.Method(a, "/get-quota", with(get, "Get the quota info", "Return a message when error occurs on get quota"), s.getQuota),
		agent.Method(a, "/request-quota-increase", with(post, "Request a quota increase", "Return a message when error occurs on request quota increase"), s.requestQuotaIncrease),
		agent.Method(a, "/confirm-payment", with(post, "Confirm a payment", "Return a message when error occurs on confirm payment"), s.confirmPayment),
		agent.Method(a, "/pin-file", withMultipart(with(post, "Pin a file to IPFS", "Return a message when error occurs on pin file")), s.pinFile),
	}
	return errors.Join(regs...)
}

func with(opts rpc.Options, ok, fail string) rpc.Options {
	opts.OkDescription = ok
	opts.ErrDescription = fail
	return opts
}

func withMultipart(opts rpc.Options) rpc.Options {
	opts.Multipart = true
	return opts
}

func fail[O any](message string) rpc.Result[O, rpc.Message] {
	return rpc.Fail[O](rpc.Message{Message: message})
}

type SessionUser struct {
	User User `json:"user" binding:"required"`
}

func (s *Service) checkSession(ctx context.Context, _ rpc.Empty, call *rpc.Call) (rpc.Result[SessionUser, rpc.Message], error) {
	user, err := s.store.User(ctx, call.User.WalletAddress)
	if errors.Is(err, ErrNotFound) {
		return fail[SessionUser]("User not found"), nil
	}
	if err != nil {
		return rpc.Result[SessionUser, rpc.Message]{}, err
	}
	return rpc.Ok[SessionUser, rpc.Message](SessionUser{User: *user}), nil
}

type FileList struct {
	Files []File `json:"files" binding:"dive"`
}

func (s *Service) getFiles(ctx context.Context, _ rpc.Empty, call *rpc.Call) (rpc.Result[FileList, rpc.Message], error) {
	files, err := s.store.Files(ctx, call.User.WalletAddress)
	if errors.Is(err, ErrNotFound) {
		return fail[FileList]("User not authenticated"), nil
	}
	if err != nil {
		return rpc.Result[FileList, rpc.Message]{}, err
	}
	return rpc.Ok[FileList, rpc.Message](FileList{Files: files}), nil
}

type QuotaInfo struct {
	FilesTotal          int `json:"filesTotal"`
	FilesTotalAvailable int `json:"filesTotalAvailable"`
}

type QuotaResponse struct {
	Quota QuotaInfo `json:"quota"`
}

func (s *Service) getQuota(ctx context.Context, _ rpc.Empty, call *rpc.Call) (rpc.Result[QuotaResponse, rpc.Message], error) {
	user, err := s.store.User(ctx, call.User.WalletAddress)
	if errors.Is(err, ErrNotFound) {
		return fail[QuotaResponse]("User not authenticated"), nil
	}
	if err != nil {
		return rpc.Result[QuotaResponse, rpc.Message]{}, err
	}
	return rpc.Ok[QuotaResponse, rpc.Message](QuotaResponse{Quota: QuotaInfo{
		FilesTotal:          len(user.Files),
		FilesTotalAvailable: user.FilesAvailable,
	}}), nil
}

type QuotaIncreaseRequest struct {
	AdditionalFiles int `json:"additionalFiles" binding:"required,min=1"`
}

type QuotaIncreaseQuote struct {
	QuoteID        string  `json:"quoteId" binding:"required"`
	Price          float64 `json:"price"`
	PaymentAddress string  `json:"paymentAddress"`
}

func (s *Service) requestQuotaIncrease(ctx context.Context, in QuotaIncreaseRequest, call *rpc.Call) (rpc.Result[QuotaIncreaseQuote, rpc.Message], error) {
	price := s.pricePerFile.Mul(decimal.NewFromInt(int64(in.AdditionalFiles)))

	quote, err := s.store.CreateQuote(ctx, call.User.WalletAddress, in.AdditionalFiles, price)
	if errors.Is(err, ErrNotFound) {
		return fail[QuotaIncreaseQuote]("User not found"), nil
	}
	if err != nil {
		return rpc.Result[QuotaIncreaseQuote, rpc.Message]{}, err
	}

	return rpc.Ok[QuotaIncreaseQuote, rpc.Message](QuotaIncreaseQuote{
		QuoteID:        quote.ID,
		Price:          price.InexactFloat64(),
		PaymentAddress: call.Agent.Address,
	}), nil
}

type PaymentConfirmation struct {
	QuoteID   string `json:"quoteId" binding:"required"`
	BlockHash string `json:"blockHash" binding:"required"`
}

func (s *Service) confirmPayment(ctx context.Context, in PaymentConfirmation, call *rpc.Call) (rpc.Result[rpc.Message, rpc.Message], error) {
	if _, err := s.store.Quote(ctx, in.QuoteID); errors.Is(err, ErrNotFound) {
		return fail[rpc.Message]("Quote not found"), nil
	} else if err != nil {
		return rpc.Result[rpc.Message, rpc.Message]{}, err
	}

	status, err := call.CheckTransaction(ctx, in.BlockHash)
	if err != nil {
		return rpc.Result[rpc.Message, rpc.Message]{}, fmt.Errorf("failed to check transaction: %w", err)
	}
	if !status.IsValid {
		return fail[rpc.Message]("Payment failed"), nil
	}

	switch err := s.store.SettleQuote(ctx, call.User.WalletAddress, in.QuoteID, in.BlockHash); {
	case errors.Is(err, ErrNotFound):
		return fail[rpc.Message]("Quote not found"), nil
	case errors.Is(err, ErrQuotePaid):
		return fail[rpc.Message]("Quote already paid"), nil
	case err != nil:
		return rpc.Result[rpc.Message, rpc.Message]{}, err
	}

	call.Log().Info("payment confirmed",
		zap.String("quote_id", in.QuoteID),
		zap.String("tx", in.BlockHash))
	return rpc.Ok[rpc.Message, rpc.Message](rpc.Message{Message: "Payment confirmed"}), nil
}

type PinFileRequest struct {
	File *multipart.FileHeader `json:"file" form:"file" binding:"required"`
}

type PinnedFile struct {
	File File `json:"file" binding:"required"`
}

func (s *Service) pinFile(ctx context.Context, in PinFileRequest, call *rpc.Call) (rpc.Result[PinnedFile, rpc.Message], error) {
	address := call.User.WalletAddress

	switch err := s.store.ReserveFile(ctx, address); {
	case errors.Is(err, ErrNotFound):
		return fail[PinnedFile]("User not found"), nil
	case errors.Is(err, ErrNoQuota):
		return fail[PinnedFile]("No files available"), nil
	case err != nil:
		return rpc.Result[PinnedFile, rpc.Message]{}, err
	}

	cid, err := s.pin(ctx, in.File)
	if err != nil {
		s.store.ReleaseFile(ctx, address)
		call.Log().Warn("pinning failed", zap.String("name", in.File.Filename), zap.Error(err))
		return fail[PinnedFile]("Failed to pin file"), nil
	}

	file, err := s.store.AddFile(ctx, address, in.File.Filename, in.File.Size, cid)
	if err != nil {
		return rpc.Result[PinnedFile, rpc.Message]{}, err
	}
	return rpc.Ok[PinnedFile, rpc.Message](PinnedFile{File: *file}), nil
}

func (s *Service) pin(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	return s.pinner.Pin(ctx, fh.Filename, f)
}
