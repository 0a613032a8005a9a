package domain

import "errors"

// Errores de dominio (sin dependencias externas).
//
// Taxonomía del motor de comparación:
//   - ErrDataSource: fallo de la consulta de ventas u ofertas. Fatal para la petición.
//   - ErrExternalDegraded: la API de popularidad no respondió; se recupera localmente.
//   - ErrCache: fallo del almacén de caché; se recupera calculando directamente.
var (
	ErrInvalidInput     = errors.New("entrada inválida")
	ErrDataSource       = errors.New("fuente de datos no disponible")
	ErrExternalDegraded = errors.New("servicio externo degradado")
	ErrCache            = errors.New("error de caché")
)
