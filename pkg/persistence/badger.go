package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/betbot/riskcore/pkg/logger"
)

// BadgerService 基于 Badger 的持久化服务（嵌入式 KV）。
// 相比 JSON 文件后端：写入走 WAL，适合单进程长期运行的 riskd。
type BadgerService struct {
	db *badger.DB
}

// OpenBadgerService 打开（或创建）Badger 数据库
func OpenBadgerService(path string) (*BadgerService, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("persistence: badger path is required")
	}
	opts := badger.DefaultOptions(path).
		WithLogger(nil) // Badger 自带日志太吵，统一走本项目 logger
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerService{db: db}, nil
}

// Close 关闭数据库
func (s *BadgerService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NewStore 创建新的存储
func (s *BadgerService) NewStore(prefix, id, tag string) Store {
	key := fmt.Sprintf("%s:%s:%s", prefix, id, tag)
	return &badgerStore{
		db:  s.db,
		key: []byte(key),
	}
}

type badgerStore struct {
	db  *badger.DB
	key []byte
}

// Save 保存数据（单 key 事务写入）
func (s *badgerStore) Save(data interface{}) error {
	logger.Debugf("[persistence] badger Save: key=%s", s.key)
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, b)
	})
}

// Load 加载数据
func (s *badgerStore) Load(data interface{}) error {
	logger.Debugf("[persistence] badger Load: key=%s", s.key)
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotExists
			}
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(raw, data)
}
