package crosschain

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/skydeed/skydeed/internal/domain"
)

// HistoryStore 转移历史的持久层（Badger）
// 每条记录按创建顺序编号，key = prefix + 大端序号，迭代即得创建序，
// 同一记录的每次状态变化都整条覆写，重启后历史原样恢复
type HistoryStore struct {
	db *badger.DB
}

var transferKeyPrefix = []byte("transfer/")

// StoreOptions 打开历史库的选项
type StoreOptions struct {
	Path     string
	InMemory bool // 测试用
}

// OpenStore 打开或创建历史库
func OpenStore(opts StoreOptions) (*HistoryStore, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("crosschain: store path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithInMemory(opts.InMemory)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func recordKey(seq uint64) []byte {
	k := make([]byte, len(transferKeyPrefix)+8)
	copy(k, transferKeyPrefix)
	binary.BigEndian.PutUint64(k[len(transferKeyPrefix):], seq)
	return k
}

// Put 写入或覆写一条记录
func (s *HistoryStore) Put(seq uint64, rec *domain.TransferRecord) error {
	if s == nil || s.db == nil {
		return errors.New("crosschain: store not opened")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(seq), raw)
	})
}

// All 按创建顺序读出全部记录，同时返回下一个可用序号
func (s *HistoryStore) All() ([]domain.TransferRecord, uint64, error) {
	if s == nil || s.db == nil {
		return nil, 0, errors.New("crosschain: store not opened")
	}
	var (
		records []domain.TransferRecord
		nextSeq uint64
	)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(transferKeyPrefix); it.ValidForPrefix(transferKeyPrefix); it.Next() {
			item := it.Item()
			seq := binary.BigEndian.Uint64(item.Key()[len(transferKeyPrefix):])
			if seq >= nextSeq {
				nextSeq = seq + 1
			}
			var rec domain.TransferRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return records, nextSeq, nil
}

// Clear 删除全部历史
func (s *HistoryStore) Clear() error {
	if s == nil || s.db == nil {
		return errors.New("crosschain: store not opened")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		var keys [][]byte
		for it.Seek(transferKeyPrefix); it.ValidForPrefix(transferKeyPrefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
