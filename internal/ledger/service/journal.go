// Package service 账务业务逻辑
package service

import (
	"context"
	"time"

	"github.com/retailcore/salesaga/pkg/decimal"
	commonerrors "github.com/retailcore/salesaga/pkg/errors"
	"github.com/retailcore/salesaga/pkg/logger"
	"github.com/retailcore/salesaga/pkg/snowflake"

	"github.com/retailcore/salesaga/internal/ledger/repository"
)

// JournalStore 分录存储接口
type JournalStore interface {
	InsertBatch(ctx context.Context, entries []*repository.JournalEntry) error
	DeleteByReference(ctx context.Context, referenceType, referenceID string) (int64, error)
	GetByReference(ctx context.Context, referenceType, referenceID string) ([]*repository.JournalEntry, error)
}

// EntryInput 待登账的分录
type EntryInput struct {
	AccountCode string `json:"accountCode"`
	AccountName string `json:"accountName"`
	Side        string `json:"side"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

// JournalService 分录服务
type JournalService struct {
	store JournalStore
	idGen *snowflake.Generator
	log   *logger.Logger
}

// NewJournalService 创建分录服务
func NewJournalService(store JournalStore, idGen *snowflake.Generator, log *logger.Logger) *JournalService {
	return &JournalService{store: store, idGen: idGen, log: log}
}

// RegisterBatch 校验并登记一批分录。先整批校验再整批写入：
// 任意一条非法时整批拒绝，库里不会出现半截批次。
func (s *JournalService) RegisterBatch(ctx context.Context, referenceType, referenceID string, inputs []EntryInput) ([]*repository.JournalEntry, error) {
	if referenceType == "" || referenceID == "" {
		return nil, commonerrors.New(commonerrors.CodeInvalidParam, "reference type and id are required")
	}
	if len(inputs) == 0 {
		return nil, commonerrors.New(commonerrors.CodeInvalidEntry, "empty journal batch")
	}

	debits := decimal.FromInt(0)
	credits := decimal.FromInt(0)
	for i, in := range inputs {
		amount, err := s.validateEntry(i, in)
		if err != nil {
			return nil, err
		}
		if in.Side == repository.SideDebit {
			debits = debits.Add(amount)
		} else {
			credits = credits.Add(amount)
		}
	}
	if !debits.Equal(credits) {
		return nil, commonerrors.Newf(commonerrors.CodeUnbalancedBatch,
			"debits %s do not equal credits %s", debits.String(), credits.String())
	}

	nowMs := time.Now().UnixMilli()
	entries := make([]*repository.JournalEntry, 0, len(inputs))
	for _, in := range inputs {
		id, err := s.idGen.Generate()
		if err != nil {
			return nil, commonerrors.Wrap(commonerrors.CodeInternal, "generate journal id", err)
		}
		entries = append(entries, &repository.JournalEntry{
			JournalID:     id,
			EntryDateMs:   nowMs,
			ReferenceType: referenceType,
			ReferenceID:   referenceID,
			AccountCode:   in.AccountCode,
			AccountName:   in.AccountName,
			Side:          in.Side,
			Amount:        in.Amount,
			Description:   in.Description,
			CreateTimeMs:  nowMs,
		})
	}

	if err := s.store.InsertBatch(ctx, entries); err != nil {
		return nil, commonerrors.Wrap(commonerrors.CodePersistenceFailure, "insert journal batch", err)
	}

	s.log.Infof("journal batch registered", map[string]interface{}{
		"referenceType": referenceType,
		"referenceId":   referenceID,
		"entries":       len(entries),
	})
	return entries, nil
}

// DeleteByReference 删除单据的全部分录，返回删除条数
func (s *JournalService) DeleteByReference(ctx context.Context, referenceType, referenceID string) (int64, error) {
	if referenceType == "" || referenceID == "" {
		return 0, commonerrors.New(commonerrors.CodeInvalidParam, "reference type and id are required")
	}
	deleted, err := s.store.DeleteByReference(ctx, referenceType, referenceID)
	if err != nil {
		return 0, commonerrors.Wrap(commonerrors.CodePersistenceFailure, "delete journal entries", err)
	}
	s.log.Infof("journal entries deleted", map[string]interface{}{
		"referenceType": referenceType,
		"referenceId":   referenceID,
		"deleted":       deleted,
	})
	return deleted, nil
}

// GetByReference 查询单据的分录
func (s *JournalService) GetByReference(ctx context.Context, referenceType, referenceID string) ([]*repository.JournalEntry, error) {
	entries, err := s.store.GetByReference(ctx, referenceType, referenceID)
	if err != nil {
		return nil, commonerrors.Wrap(commonerrors.CodePersistenceFailure, "load journal entries", err)
	}
	return entries, nil
}

func (s *JournalService) validateEntry(i int, in EntryInput) (*decimal.Decimal, error) {
	if in.AccountCode == "" {
		return nil, commonerrors.Newf(commonerrors.CodeInvalidEntry, "entry %d: account code is required", i)
	}
	if in.AccountName == "" {
		return nil, commonerrors.Newf(commonerrors.CodeInvalidEntry, "entry %d: account name is required", i)
	}
	if in.Side != repository.SideDebit && in.Side != repository.SideCredit {
		return nil, commonerrors.Newf(commonerrors.CodeInvalidEntry, "entry %d: side must be debit or credit, got %q", i, in.Side)
	}
	amount, err := decimal.New(in.Amount)
	if err != nil {
		return nil, commonerrors.Newf(commonerrors.CodeInvalidEntry, "entry %d: invalid amount %q", i, in.Amount)
	}
	if !amount.IsPositive() {
		return nil, commonerrors.Newf(commonerrors.CodeInvalidEntry, "entry %d: amount must be positive, got %s", i, in.Amount)
	}
	return amount, nil
}
