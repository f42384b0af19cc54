// Package envelope はアプリ単位の鍵ペアによるエンベロープ暗号化を提供する。
//
// 暗号文はRFC 5652のCMS EnvelopedData（DER）で、呼び出しごとにランダム生成したAES-256鍵で
// 本文を暗号化し、そのAES鍵を証明書のRSA公開鍵でラップする。対応する秘密鍵の保持者だけが
// 本文を復元できる。既存の利用者が標準CMS実装で読めるよう、形式は標準に従う。
//
// 最初のNewEncryptor呼び出しでpkcs7.ContentEncryptionAlgorithmをAES-256-CBCに設定する。
// この変数はプロセス全体で共有されるため、同じバイナリ内でpkcs7.Encryptを直接使う
// コードにも同じ方式が適用される。
package envelope
