package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewSessionID 生成会话 ID：秒级时间戳前缀使列表按创建序排序，uuid 片段保证唯一。
// NewSessionID mints a session id. The second-resolution timestamp prefix
// keeps listings in creation order; the uuid fragment guarantees uniqueness.
func NewSessionID() string {
	frag := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("trk_%d_%s", time.Now().UTC().Unix(), frag)
}
