package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/testwing/testwing/models"
)

var (
	healingHistoryBucket = []byte("healing_history")
	signaturesBucket     = []byte("signatures")
	descriptorsBucket    = []byte("descriptors")
)

// maxStoredHealingRecords 每个原始定位器落盘保留的自愈记录上限，与内存侧一致
const maxStoredHealingRecords = 10

type BoltDB struct {
	db *bolt.DB
}

func NewBoltDB(dbPath string) (*BoltDB, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w (directory: %s)", dbPath, err, dir)
	}

	// 创建必要的bucket
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(healingHistoryBucket)
		if err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(signaturesBucket)
		if err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(descriptorsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

// ============= 自愈历史相关方法 =============

// SaveHealingResult 追加一条自愈记录，按原始定位器分组，超限淘汰最旧
func (b *BoltDB) SaveHealingResult(r models.HealingResult) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(healingHistoryBucket)
		key := []byte(r.OriginalLocator)

		var list []models.HealingResult
		if data := bucket.Get(key); data != nil {
			if err := json.Unmarshal(data, &list); err != nil {
				// 旧数据损坏时直接覆盖
				list = nil
			}
		}
		list = append(list, r)
		if len(list) > maxStoredHealingRecords {
			list = list[len(list)-maxStoredHealingRecords:]
		}

		data, err := json.Marshal(list)
		if err != nil {
			return err
		}
		return bucket.Put(key, data)
	})
}

// ListHealingRecords 获取指定原始定位器的自愈记录（最旧在前）
func (b *BoltDB) ListHealingRecords(originalLocator string) ([]models.HealingResult, error) {
	var list []models.HealingResult
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(healingHistoryBucket)
		data := bucket.Get([]byte(originalLocator))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &list)
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ListAllHealingRecords 列出所有自愈记录，按时间倒序
func (b *BoltDB) ListAllHealingRecords() ([]models.HealingResult, error) {
	var all []models.HealingResult
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(healingHistoryBucket)
		return bucket.ForEach(func(k, v []byte) error {
			var list []models.HealingResult
			if err := json.Unmarshal(v, &list); err != nil {
				return nil // 跳过无效数据
			}
			all = append(all, list...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	return all, nil
}

// ============= 签名相关方法 =============

// signatureRecord 同一原始定位器的视觉/结构签名合并存储
type signatureRecord struct {
	Visual    *models.VisualSignature    `json:"visual,omitempty"`
	Structure *models.StructureSignature `json:"structure,omitempty"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// SaveVisualSignature 保存视觉签名
func (b *BoltDB) SaveVisualSignature(locator string, sig models.VisualSignature) error {
	return b.updateSignature(locator, func(rec *signatureRecord) {
		rec.Visual = &sig
	})
}

// SaveStructureSignature 保存结构签名
func (b *BoltDB) SaveStructureSignature(locator string, sig models.StructureSignature) error {
	return b.updateSignature(locator, func(rec *signatureRecord) {
		rec.Structure = &sig
	})
}

func (b *BoltDB) updateSignature(locator string, apply func(*signatureRecord)) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(signaturesBucket)
		key := []byte(locator)

		var rec signatureRecord
		if data := bucket.Get(key); data != nil {
			if err := json.Unmarshal(data, &rec); err != nil {
				rec = signatureRecord{}
			}
		}
		apply(&rec)
		rec.UpdatedAt = time.Now()

		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return bucket.Put(key, data)
	})
}

// GetSignatures 获取指定原始定位器的签名，不存在的部分返回 nil
func (b *BoltDB) GetSignatures(locator string) (*models.VisualSignature, *models.StructureSignature, error) {
	var rec signatureRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(signaturesBucket)
		data := bucket.Get([]byte(locator))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, nil, err
	}
	return rec.Visual, rec.Structure, nil
}

// ============= 描述符管理相关方法 =============

// SaveDescriptor 保存命名描述符
func (b *BoltDB) SaveDescriptor(rec *models.DescriptorRecord) error {
	rec.UpdatedAt = time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(descriptorsBucket)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(rec.ID), data)
	})
}

// GetDescriptor 获取命名描述符
func (b *BoltDB) GetDescriptor(id string) (*models.DescriptorRecord, error) {
	var rec models.DescriptorRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(descriptorsBucket)
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("descriptor not found: %s", id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListDescriptors 列出所有命名描述符
func (b *BoltDB) ListDescriptors() ([]*models.DescriptorRecord, error) {
	var recs []*models.DescriptorRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(descriptorsBucket)
		return bucket.ForEach(func(k, v []byte) error {
			var rec models.DescriptorRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // 跳过无效数据
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// 按创建时间倒序排序
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})

	return recs, nil
}

// DeleteDescriptor 删除命名描述符
func (b *BoltDB) DeleteDescriptor(id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(descriptorsBucket)
		return bucket.Delete([]byte(id))
	})
}
