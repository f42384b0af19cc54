package archive

import (
	"bytes"
	"encoding/binary"
)

const (
	eocdSignature         = "PK\x05\x06"
	eocdLen               = 22
	zip64LocatorSignature = "PK\x06\x07"
	zip64LocatorLen       = 20
	zip64EOCDSignature    = "PK\x06\x06"
	zip64EOCDLen          = 56
	maxCommentLen         = 0xffff
)

// declaredEntryCount は終端レコードに記録されたエントリ総数を返す。
// セントラルディレクトリ本体は読まないため、件数超過をエントリの解析前に判定できる。
// 終端レコードが見つからない場合は false を返し、判定はzipリーダーに委ねる。
func declaredEntryCount(data []byte) (uint64, bool) {
	offset := findEOCD(data)
	if offset < 0 {
		return 0, false
	}
	count := uint64(binary.LittleEndian.Uint16(data[offset+10:]))
	if count != 0xffff {
		return count, true
	}

	// 0xffff はZIP64の終端レコードに実際の値があることを示す
	loc := offset - zip64LocatorLen
	if loc < 0 || string(data[loc:loc+4]) != zip64LocatorSignature {
		return count, true
	}
	recOffset := binary.LittleEndian.Uint64(data[loc+8:])
	if len(data) < zip64EOCDLen || recOffset > uint64(len(data)-zip64EOCDLen) ||
		string(data[recOffset:recOffset+4]) != zip64EOCDSignature {
		return count, true
	}
	return binary.LittleEndian.Uint64(data[recOffset+32:]), true
}

// findEOCD は末尾から終端レコードを探し、その開始位置を返す。見つからない場合は -1。
func findEOCD(data []byte) int {
	if len(data) < eocdLen {
		return -1
	}
	lower := len(data) - eocdLen - maxCommentLen
	if lower < 0 {
		lower = 0
	}
	for i := len(data) - eocdLen; i >= lower; i-- {
		i = bytes.LastIndex(data[lower:i+4], []byte(eocdSignature))
		if i < 0 {
			return -1
		}
		i += lower
		// コメントがデータ内に収まるものだけを終端レコードとみなす
		commentLen := int(binary.LittleEndian.Uint16(data[i+20:]))
		if i+eocdLen+commentLen <= len(data) {
			return i
		}
	}
	return -1
}
