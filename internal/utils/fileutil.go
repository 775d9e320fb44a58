package utils

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

/**
 *	原子写文件: 写同目录临时文件, 设置权限, 再改名覆盖目标
 */
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp")
	if err := afero.WriteFile(fs, tmp, data, perm); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	if err := fs.Chmod(tmp, perm); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return fs.Rename(tmp, path)
}
