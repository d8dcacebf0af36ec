package cache

import "fmt"

// 键语义：
// - editorsKey(entryID):  条目当前编辑者（ZSet<userId, expireAtUnix>，score=expireAt）
// - namesKey(entryID):    userId→username 映射（Hash）
// - versionKey(entryID):  条目当前版本号的读缓存（String，-1 为空值标记）

const (
	// {} 包住 tag：Redis 只对 {} 内部做 CRC16，保证同一条目的键落在同一槽位
	keyEditorsFmt = "journal:editors:{entry:%d}"
	keyNamesFmt   = "journal:editors:names:{entry:%d}"
	keyVersionFmt = "journal:version:{entry:%d}"
)

func editorsKey(entryID uint64) string { return fmt.Sprintf(keyEditorsFmt, entryID) }
func namesKey(entryID uint64) string   { return fmt.Sprintf(keyNamesFmt, entryID) }
func versionKey(entryID uint64) string { return fmt.Sprintf(keyVersionFmt, entryID) }
