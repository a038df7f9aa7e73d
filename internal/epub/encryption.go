package epub

import (
	"net/url"
	"strings"
)

// Encryption classifies the protection applied to a book.
type Encryption int

const (
	EncryptionNone Encryption = iota
	EncryptionFontObfuscation
	EncryptionAdobeDRM
	EncryptionAppleFairPlay
	EncryptionLCP
	EncryptionUnknownDRM
)

var encryptionNames = map[Encryption]string{
	EncryptionNone:            "none",
	EncryptionFontObfuscation: "font-obfuscation",
	EncryptionAdobeDRM:        "adobe-drm",
	EncryptionAppleFairPlay:   "apple-fairplay",
	EncryptionLCP:             "lcp",
	EncryptionUnknownDRM:      "unknown-drm",
}

func (e Encryption) String() string {
	if s, ok := encryptionNames[e]; ok {
		return s
	}
	return "unknown-drm"
}

// HasDRM reports whether the protection prevents reading. Font obfuscation
// does not.
func (e Encryption) HasDRM() bool {
	return e != EncryptionNone && e != EncryptionFontObfuscation
}

// MarshalText implements encoding.TextMarshaler.
func (e Encryption) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Font obfuscation algorithm URIs. These are not DRM.
var fontObfuscationAlgorithms = map[string]bool{
	"http://www.idpf.org/2008/embedding": true,
	"http://ns.adobe.com/pdf/enc#RC":     true,
}

// drmSignatures maps namespaces found in algorithm URIs or KeyInfo to a
// classification.
var drmSignatures = []struct {
	prefix string
	class  Encryption
}{
	{"http://ns.adobe.com/adept", EncryptionAdobeDRM},
	{"http://readium.org/2014/01/lcp", EncryptionLCP},
	{"itunes.apple.com", EncryptionAppleFairPlay},
}

type encryptionManifest struct {
	Data []encryptedData `xml:"EncryptedData"`
}

type encryptedData struct {
	EncryptionMethod struct {
		Algorithm string `xml:"Algorithm,attr"`
	} `xml:"EncryptionMethod"`
	KeyInfo struct {
		InnerXML string `xml:",innerxml"`
	} `xml:"KeyInfo"`
	CipherData struct {
		CipherReference struct {
			URI string `xml:"URI,attr"`
		} `xml:"CipherReference"`
	} `xml:"CipherData"`
}

// InspectEncryption classifies the archive's protection. It reports only; it
// never decrypts.
func InspectEncryption(a *Archive) Encryption {
	if _, ok := a.ReadExact(SinfPath); ok {
		return EncryptionAppleFairPlay
	}
	if _, ok := a.ReadExact(LicensePath); ok {
		return EncryptionLCP
	}

	data, ok := a.ReadExact(EncryptionPath)
	if !ok {
		return EncryptionNone
	}

	var m encryptionManifest
	if err := newXMLDecoder(stripBOM(data)).Decode(&m); err != nil {
		return EncryptionUnknownDRM
	}
	return classifyEncryption(m.Data)
}

func classifyEncryption(entries []encryptedData) Encryption {
	if len(entries) == 0 {
		return EncryptionNone
	}
	for _, ed := range entries {
		algo := strings.TrimSpace(ed.EncryptionMethod.Algorithm)
		if fontObfuscationAlgorithms[algo] || isFontPath(cipherPath(ed.CipherData.CipherReference.URI)) {
			continue
		}
		return drmSignature(algo + " " + ed.KeyInfo.InnerXML)
	}
	return EncryptionFontObfuscation
}

func drmSignature(s string) Encryption {
	for _, sig := range drmSignatures {
		if strings.Contains(s, sig.prefix) {
			return sig.class
		}
	}
	return EncryptionUnknownDRM
}

func cipherPath(uri string) string {
	if d, err := url.PathUnescape(uri); err == nil {
		uri = d
	}
	return normalizePath(uri)
}
